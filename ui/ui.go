// Package ui provides the terminal reader for readaloud.
package ui

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/chunk"
	"github.com/clarityread/readaloud/tts/highlight"
	"github.com/clarityread/readaloud/tts/source"
	ttssync "github.com/clarityread/readaloud/tts/sync"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "reloaded"
	statusBarHeight      = 1
	rateStep             = 0.1
	ellipsis             = "…"
)

// Reader is the part of tts.Service the UI drives.
type Reader interface {
	WaitForMsg() tea.Cmd
	StartCmd(tts.ReadRequest) tea.Cmd
	SpeedReadCmd(tts.SpeedReadRequest) tea.Cmd
	ToggleCmd() tea.Cmd
	StopCmd() tea.Cmd
}

// DocumentMsg replaces the document being read, as after a file change.
type DocumentMsg struct {
	source.Document
}

type statusMessageTimeoutMsg int

// NewProgram returns a new Tea program reading doc aloud through reader.
func NewProgram(cfg Config, reader Reader, doc source.Document) *tea.Program {
	log.Debug(
		"starting reader",
		"document", doc.Name,
		"speed_read", cfg.SpeedRead,
		"highlight", cfg.Highlight,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, reader, doc), opts...)
}

type model struct {
	cfg      Config
	reader   Reader
	doc      source.Document
	keys     keyMap
	help     help.Model
	viewport viewport.Model
	hlStyle  lipgloss.Style

	width  int
	height int
	ready  bool

	session   uint64
	status    tts.Status
	rate      float64
	speedRate float64
	speedRead bool
	follow    bool

	units    []highlight.Unit
	index    *highlight.Index
	position int
	chunk    *tts.ChunkInfo

	statusMessage string
	statusIsError bool
	statusSeq     int
}

func newModel(cfg Config, reader Reader, doc source.Document) model {
	keys := newKeyMap()

	vp := viewport.New(0, 0)
	vp.KeyMap = viewport.KeyMap{
		PageDown:     keys.PageDown,
		PageUp:       keys.PageUp,
		HalfPageUp:   key.NewBinding(key.WithKeys("u", "ctrl+u")),
		HalfPageDown: key.NewBinding(key.WithKeys("d", "ctrl+d")),
		Up:           keys.Up,
		Down:         keys.Down,
	}

	rate := cfg.Rate
	if rate == 0 {
		rate = 1
	}
	speedRate := cfg.SpeedReadRate
	if speedRate == 0 {
		speedRate = rate
	}

	return model{
		cfg:       cfg,
		reader:    reader,
		doc:       doc,
		keys:      keys,
		help:      help.New(),
		viewport:  vp,
		hlStyle:   newHighlightStyle(cfg.HighlightColor),
		rate:      tts.ClampRate(rate),
		speedRate: tts.ClampRate(speedRate),
		speedRead: cfg.SpeedRead,
		follow:    true,
		position:  -1,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.reader.WaitForMsg()}
	if m.cfg.AutoStart {
		cmds = append(cmds, m.start())
	}
	return tea.Batch(cmds...)
}

// start asks the service to read the whole document from the top.
func (m model) start() tea.Cmd {
	if m.speedRead {
		return m.reader.SpeedReadCmd(tts.SpeedReadRequest{
			Text:          m.doc.Text,
			Voice:         m.cfg.Voice,
			WordsPerChunk: m.cfg.WordsPerChunk,
			Rate:          m.speedRate,
		})
	}
	return m.reader.StartCmd(tts.ReadRequest{
		Text:      m.doc.Text,
		Voice:     m.cfg.Voice,
		Rate:      m.rate,
		Pitch:     m.cfg.Pitch,
		Highlight: m.cfg.Highlight,
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Toggle):
			if m.status == tts.StatusNotReading {
				return m, m.start()
			}
			return m, m.reader.ToggleCmd()

		case key.Matches(msg, m.keys.Stop):
			return m, m.reader.StopCmd()

		case key.Matches(msg, m.keys.Restart):
			return m, m.start()

		case key.Matches(msg, m.keys.SpeedRead):
			m.speedRead = !m.speedRead
			note := "Speed-read off"
			if m.speedRead {
				note = "Speed-read on"
			}
			return m, tea.Batch(m.showStatusMessage(note, false), m.start())

		case key.Matches(msg, m.keys.Slower), key.Matches(msg, m.keys.Faster):
			step := rateStep
			if key.Matches(msg, m.keys.Slower) {
				step = -rateStep
			}
			r := &m.rate
			if m.speedRead {
				r = &m.speedRate
			}
			*r = tts.ClampRate(math.Round((*r+step)*10) / 10)
			note := fmt.Sprintf("Rate %.1f×", *r)
			if m.status != tts.StatusNotReading {
				note += " from next read"
			}
			return m, m.showStatusMessage(note, false)

		case key.Matches(msg, m.keys.Follow):
			m.follow = !m.follow
			if m.follow {
				m.rerender()
				return m, m.showStatusMessage("Following highlight", false)
			}
			return m, m.showStatusMessage("Not following highlight", false)

		case key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
			return m, nil

		case key.Matches(msg, m.keys.Bottom):
			m.viewport.GotoBottom()
			return m, nil

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.setSize(m.width, m.height)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		m.ready = true
		m.rerender()

	case tts.StatusMsg:
		m.session = msg.Session
		m.status = msg.Status
		if msg.Status == tts.StatusNotReading {
			m.chunk = nil
		}
		m.rerender()
		cmds = append(cmds, m.reader.WaitForMsg())

	case tts.HighlightMsg:
		switch msg.Kind {
		case ttssync.Ready:
			m.units = msg.Units
			m.index = highlight.Build(msg.Units)
			m.position = msg.Position
		case ttssync.Moved:
			m.position = msg.Position
		case ttssync.Torn:
			m.units, m.index, m.position = nil, nil, -1
		}
		m.rerender()
		cmds = append(cmds, m.reader.WaitForMsg())

	case tts.ChunkMsg:
		info := msg.ChunkInfo
		m.chunk = &info
		if info.Retry {
			cmds = append(cmds, m.showStatusMessage(fmt.Sprintf("Retrying at %.1f×", info.Rate), false))
		}
		m.rerender()
		cmds = append(cmds, m.reader.WaitForMsg())

	case tts.ErrorMsg:
		log.Debug("session error", "err", msg.Err)
		cmds = append(cmds, m.showStatusMessage(errorText(msg.Err), true), m.reader.WaitForMsg())

	case tts.CommandErrorMsg:
		log.Debug("command failed", "err", msg.Err)
		return m, m.showStatusMessage(errorText(msg.Err), true)

	case DocumentMsg:
		log.Info("document reloaded", "document", msg.Name)
		m.doc = msg.Document
		m.units, m.index, m.position, m.chunk = nil, nil, -1, nil
		m.rerender()
		cmds = append(cmds, m.showStatusMessage("Reloaded", false))
		if m.status != tts.StatusNotReading || m.cfg.AutoStart {
			cmds = append(cmds, m.start())
		}
		return m, tea.Batch(cmds...)

	case statusMessageTimeoutMsg:
		if int(msg) == m.statusSeq {
			m.statusMessage = ""
			m.statusIsError = false
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) setSize(w, h int) {
	m.width = w
	m.height = h
	m.help.Width = w

	m.viewport.Width = w
	m.viewport.Height = h - statusBarHeight
	if m.help.ShowAll {
		m.viewport.Height -= lipgloss.Height(m.helpView())
	}
	m.viewport.Height = max(0, m.viewport.Height)
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

func (m model) contentWidth() int {
	w := m.viewport.Width
	if m.cfg.MaxWidth > 0 {
		w = min(w, int(m.cfg.MaxWidth)) //nolint:gosec
	}
	return w
}

// currentSpan returns the range to paint: the spoken word when the overlay
// is ready, otherwise the chunk being spoken.
func (m model) currentSpan() (span, func(...string) string) {
	if s := unitSpan(m.units, m.index, m.position); !s.empty() {
		return s, m.hlStyle.Render
	}
	if m.chunk != nil && m.chunk.Session == m.session && m.status != tts.StatusNotReading {
		return span{from: m.chunk.Offset, to: m.chunk.Offset + chunk.Runes(m.chunk.Text)}, chunkStyle.Render
	}
	return span{}, nil
}

func (m *model) rerender() {
	s, style := m.currentSpan()
	content, line := render(m.doc.Text, s, m.contentWidth(), style)
	m.viewport.SetContent(content)

	if !m.follow || s.empty() || m.viewport.Height <= 0 {
		return
	}
	if line < m.viewport.YOffset || line >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(max(0, line-m.viewport.Height/3))
	}
}

func (m *model) showStatusMessage(msg string, isError bool) tea.Cmd {
	m.statusSeq++
	m.statusMessage = msg
	m.statusIsError = isError
	seq := m.statusSeq
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg(seq)
	})
}

func errorText(err error) string {
	var re *tts.ReadError
	if errors.As(err, &re) {
		if re.Cause != nil {
			return re.Message + ": " + re.Cause.Error()
		}
		return re.Message
	}
	return err.Error()
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing…"
	}

	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")
	m.statusBarView(&b)
	if m.help.ShowAll {
		fmt.Fprint(&b, "\n"+m.helpView())
	}
	return b.String()
}

func (m model) statusBarView(b *strings.Builder) {
	const (
		minPercent               float64 = 0.0
		maxPercent               float64 = 1.0
		percentToStringMagnitude float64 = 100.0
	)

	logo := logoStyle.Render(" readaloud ")

	icon := statusIcons[m.status.String()]
	status := lipgloss.NewStyle().
		Foreground(icon.color).
		Background(statusBarBg).
		Render(" " + icon.icon + " ")

	percent := math.Max(minPercent, math.Min(maxPercent, m.viewport.ScrollPercent()))
	scrollPercent := statusBarScrollPosStyle(fmt.Sprintf(" %3.f%% ", percent*percentToStringMagnitude))

	helpNote := statusBarHelpStyle(" ? Help ")

	note := m.note()
	style := statusBarNoteStyle
	if m.statusMessage != "" {
		note = m.statusMessage
		style = statusBarMessageStyle
		if m.statusIsError {
			style = statusBarErrorStyle
		}
	}

	fixed := ansi.PrintableRuneWidth(logo) +
		ansi.PrintableRuneWidth(status) +
		ansi.PrintableRuneWidth(scrollPercent) +
		ansi.PrintableRuneWidth(helpNote)
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, m.width-fixed)), ellipsis) //nolint:gosec
	padding := max(0, m.width-fixed-ansi.PrintableRuneWidth(note))

	fmt.Fprintf(b, "%s%s%s%s%s%s",
		logo,
		status,
		style(note),
		style(strings.Repeat(" ", padding)),
		scrollPercent,
		helpNote,
	)
}

// note describes the document and reading progress.
func (m model) note() string {
	parts := []string{m.doc.Name, m.status.String()}
	if m.chunk != nil && m.chunk.Total > 1 {
		parts = append(parts, fmt.Sprintf("%d/%d", m.chunk.Index+1, m.chunk.Total))
	}
	if m.speedRead {
		parts = append(parts, fmt.Sprintf("%.1f×", m.speedRate), "speed-read")
	} else {
		parts = append(parts, fmt.Sprintf("%.1f×", m.rate))
	}
	return strings.Join(parts, " · ")
}

func (m model) helpView() string {
	s := indent(m.help.FullHelpView(m.keys.FullHelp()), 2)

	// Fill up empty cells with spaces for background coloring
	if m.width > 0 {
		lines := strings.Split(s, "\n")
		for i := range lines {
			n := max(m.width-ansi.PrintableRuneWidth(lines[i]), 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}
	return helpViewStyle(s)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	i := strings.Repeat(" ", n)
	for k, v := range l {
		l[k] = i + v
	}
	return "\n" + strings.Join(l, "\n") + "\n"
}

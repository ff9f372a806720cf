// Package main provides the entry point for the readaloud CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/engines"
	"github.com/clarityread/readaloud/tts/source"
	"github.com/clarityread/readaloud/tts/stats"
	"github.com/clarityread/readaloud/ui"
)

const closeTimeout = 2 * time.Second

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile    string
	debug         bool
	mouse         bool
	width         uint
	noHighlight   bool
	fromClipboard bool
	watch         bool
	speedRead     bool
	printOnly     bool

	// readCfg is the effective read-aloud configuration, loaded before any
	// command runs.
	readCfg tts.Config

	rootCmd = &cobra.Command{
		Use:   "readaloud [SOURCE|DIR]",
		Short: "Read text and markdown aloud in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nRead text and markdown %s, following along word by word.", keyword("aloud")),
		),
		Example: paragraph("readaloud README.md\nreadaloud --speed-read notes.md\ncurl -s https://example.com/post.md | readaloud"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	// grab config values from Viper
	mouse = viper.GetBool("mouse")
	width = viper.GetUint("width")

	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return err
	}
	if noHighlight {
		cfg.Highlight = false
	}
	if err := resolvePaths(&cfg); err != nil {
		return err
	}
	readCfg = cfg
	log.Debug("configuration loaded", "engine", cfg.Engine, "rate", cfg.Rate, "file", viper.ConfigFileUsed())

	// Detect terminal width
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if !cmd.Flags().Changed("width") { //nolint:nestif
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}

			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

// resolvePaths expands user paths and fills in the per-user defaults for
// the stats database and the audio cache.
func resolvePaths(cfg *tts.Config) error {
	scope := gap.NewScope(gap.User, "readaloud")

	var err error
	if cfg.Stats.Path == "" {
		if cfg.Stats.Path, err = scope.DataPath("stats.db"); err != nil {
			return fmt.Errorf("unable to find data directory: %w", err)
		}
	}
	if cfg.Cache.Dir == "" {
		dir, err := scope.CacheDir()
		if err != nil {
			return fmt.Errorf("unable to find cache directory: %w", err)
		}
		cfg.Cache.Dir = filepath.Join(dir, "audio")
	}

	for _, p := range []*string{&cfg.Stats.Path, &cfg.Cache.Dir, &cfg.Google.CredentialsFile} {
		if *p == "" {
			continue
		}
		if *p, err = homedir.Expand(*p); err != nil {
			return err
		}
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// sourceFor picks the text source: the clipboard, piped stdin, or the
// argument.
func sourceFor(args []string) (source.Source, bool, error) {
	if fromClipboard {
		return source.Clipboard{}, false, nil
	}

	if len(args) == 0 {
		// if stdin is a pipe then use stdin for input. note that you can
		// also explicitly use a - to read from stdin.
		if yes, err := stdinIsPipe(); err != nil {
			return nil, false, err
		} else if yes {
			return source.Reader{Label: "stdin", R: os.Stdin, Markdown: true}, true, nil
		}
		src, err := source.FromArg("")
		return src, false, err
	}

	src, err := source.FromArg(args[0])
	return src, args[0] == "-", err
}

func execute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, piped, err := sourceFor(args)
	if err != nil {
		return err
	}
	doc, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("unable to load %s: %w", src.Name(), err)
	}
	log.Info("document loaded", "source", doc.Name, "markdown", doc.Markdown, "chars", len(doc.Text))

	if printOnly {
		return printDocument(doc, os.Stdout)
	}

	engine, err := engines.New(ctx, readCfg, log.Default().WithPrefix("engine"))
	if err != nil {
		return err
	}
	defer func() {
		if err := engines.Close(engine); err != nil {
			log.Warn("unable to close engine", "err", err)
		}
	}()
	if !engine.Available() {
		return fmt.Errorf("%w: install piper or espeak-ng, or choose an engine with --engine", tts.ErrNoTTS)
	}
	voice := resolveVoice(engine)

	sink, closeSink := openStats(readCfg)
	defer closeSink()

	svc := tts.NewService(engine, sink, readCfg.ToControllerConfig(), log.Default().WithPrefix("tts"))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := svc.Close(ctx); err != nil {
			log.Warn("unable to stop reading", "err", err)
		}
	}()

	if term.IsTerminal(int(os.Stdout.Fd())) && !piped {
		return runTUI(ctx, svc, doc, src, voice)
	}
	return runHeadless(ctx, svc, doc, src, voice, os.Stdout)
}

func resolveVoice(engine tts.Engine) string {
	voices := engine.Voices()
	if len(voices) == 0 {
		return readCfg.Voice
	}
	v, err := engines.ResolveVoice(voices, readCfg.Voice, readCfg.Language)
	if err != nil {
		log.Warn("using the engine's default voice", "err", err)
		return ""
	}
	log.Debug("voice selected", "voice", v)
	return v.ID
}

func openStats(cfg tts.Config) (stats.Sink, func()) {
	if !cfg.Stats.Enabled {
		return nil, func() {}
	}
	store, err := stats.Open(cfg.Stats.Path)
	if err != nil {
		log.Warn("reading stats disabled", "path", cfg.Stats.Path, "err", err)
		return nil, func() {}
	}

	async := stats.NewAsync(store, log.Default().WithPrefix("stats"))
	return async, func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := async.Close(ctx); err != nil {
			log.Warn("unable to flush reading stats", "err", err)
		}
		if err := store.Close(); err != nil {
			log.Warn("unable to close stats database", "err", err)
		}
	}
}

// watchFile calls fn with every new version of src until ctx is done. It
// does nothing unless --watch was given for a file.
func watchFile(ctx context.Context, src source.Source, fn func(source.Document)) {
	f, ok := src.(source.File)
	if !watch || !ok {
		return
	}
	go func() {
		if err := source.Watch(ctx, f, source.DefaultDebounce, fn); err != nil {
			log.Error("unable to watch file", "path", f.Path, "err", err)
		}
	}()
}

func runTUI(ctx context.Context, svc *tts.Service, doc source.Document, src source.Source, voice string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.EnableMouse = cfg.EnableMouse || mouse
	cfg.MaxWidth = width
	cfg.Voice = voice
	cfg.Rate = readCfg.Rate
	cfg.Pitch = readCfg.Pitch
	cfg.Highlight = readCfg.Highlight
	cfg.SpeedRead = speedRead
	cfg.SpeedReadRate = readCfg.SpeedRead.Rate
	cfg.WordsPerChunk = readCfg.SpeedRead.WordsPerChunk

	p := ui.NewProgram(cfg, svc, doc)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchFile(ctx, src, func(d source.Document) {
		p.Send(ui.DocumentMsg{Document: d})
	})

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// runHeadless reads doc without a TUI, printing one line per status change
// and chunk. It returns when reading ends, or with --watch when ctx is done.
func runHeadless(ctx context.Context, svc *tts.Service, doc source.Document, src source.Source, voice string, w io.Writer) error {
	out := termenv.NewOutput(w)

	start := func(d source.Document) error {
		if speedRead {
			return svc.SpeedRead(ctx, tts.SpeedReadRequest{
				Text:          d.Text,
				Voice:         voice,
				WordsPerChunk: readCfg.SpeedRead.WordsPerChunk,
				Rate:          readCfg.SpeedRead.Rate,
			})
		}
		return svc.Start(ctx, tts.ReadRequest{
			Text:      d.Text,
			Voice:     voice,
			Rate:      readCfg.Rate,
			Pitch:     readCfg.Pitch,
			Highlight: readCfg.Highlight,
		})
	}

	reloads := make(chan source.Document, 1)
	watchFile(ctx, src, func(d source.Document) {
		select {
		case reloads <- d:
		default:
		}
	})

	fmt.Fprintln(w, out.String(doc.Name).Bold()) //nolint:errcheck
	if err := start(doc); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case d := <-reloads:
			fmt.Fprintln(w, out.String("↻ reloaded "+d.Name).Faint()) //nolint:errcheck
			if err := start(d); err != nil {
				log.Warn("unable to restart reading", "err", err)
			}

		case msg := <-svc.Messages():
			switch msg := msg.(type) {
			case tts.StatusMsg:
				fmt.Fprintln(w, statusLine(out, msg.Status)) //nolint:errcheck
				if msg.Status == tts.StatusNotReading && !watch {
					return finalError(ctx, svc)
				}
			case tts.ChunkMsg:
				fmt.Fprintln(w, chunkLine(out, msg.ChunkInfo)) //nolint:errcheck
			case tts.ErrorMsg:
				if tts.IsTerminal(msg.Err) && !watch {
					return msg.Err
				}
				fmt.Fprintln(w, out.String(msg.Err.Error()).Foreground(out.Color("1"))) //nolint:errcheck
			}
		}
	}
}

// finalError returns the terminal error of the session that just ended, if
// any. The controller reports it in the same loop turn as the status
// change, so a round trip through the loop is enough to see it queued.
func finalError(ctx context.Context, svc *tts.Service) error {
	if _, err := svc.Snapshot(ctx); err != nil {
		return nil //nolint:nilerr
	}
	for {
		select {
		case msg := <-svc.Messages():
			if e, ok := msg.(tts.ErrorMsg); ok && tts.IsTerminal(e.Err) {
				return e.Err
			}
		default:
			return nil
		}
	}
}

func statusLine(out *termenv.Output, st tts.Status) string {
	var icon, color string
	switch st {
	case tts.StatusReading:
		icon, color = "▶", "2"
	case tts.StatusPaused:
		icon, color = "⏸", "3"
	default:
		icon, color = "■", "8"
	}
	return out.String(icon + " " + st.String()).Foreground(out.Color(color)).String()
}

func chunkLine(out *termenv.Output, info tts.ChunkInfo) string {
	prefix := fmt.Sprintf("  [%d/%d] ", info.Index+1, info.Total)
	if info.Retry {
		prefix = fmt.Sprintf("  [%d/%d retry %.1f×] ", info.Index+1, info.Total, info.Rate)
	}
	text := strings.Join(strings.Fields(info.Text), " ")
	text = runewidth.Truncate(text, max(10, int(width)-runewidth.StringWidth(prefix)), "…") //nolint:gosec
	return out.String(prefix).Faint().String() + text
}

func printDocument(doc source.Document, w io.Writer) error {
	style := glamour.WithAutoStyle()
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		style = glamour.WithStandardStyle(styles.NoTTYStyle)
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		style,
		glamour.WithWordWrap(int(width)), //nolint:gosec
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}

	content := doc.Text
	if doc.Markdown {
		content = string(source.RemoveFrontmatter([]byte(doc.Raw)))
	}
	out, err := r.Render(content)
	if err != nil {
		return fmt.Errorf("unable to render markdown: %w", err)
	}
	if _, err = fmt.Fprint(w, out); err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	pf.BoolVar(&debug, "debug", false, "write debug output to the log file")
	pf.StringP("engine", "e", "", fmt.Sprintf("speech engine (%s)", strings.Join(tts.Engines, ", ")))
	pf.String("voice", "", "voice id, name or language tag")

	f := rootCmd.Flags()
	f.Float64P("rate", "r", 0, fmt.Sprintf("speaking rate (%.1f-%.1f)", tts.MinRate, tts.MaxRate))
	f.Float64("pitch", 0, fmt.Sprintf("voice pitch (%.1f-%.1f)", tts.MinPitch, tts.MaxPitch))
	f.Int("words", 0, "words per chunk in speed-read mode")
	f.BoolVar(&noHighlight, "no-highlight", false, "do not highlight the word being spoken")
	f.BoolVarP(&fromClipboard, "clipboard", "c", false, "read the clipboard")
	f.BoolVarP(&watch, "watch", "W", false, "read the file again whenever it changes")
	f.BoolVarP(&speedRead, "speed-read", "s", false, "read in fixed word chunks without highlighting")
	f.BoolVarP(&printOnly, "print", "p", false, "print the document instead of reading it")
	f.UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 for the terminal width)")
	f.BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = f.MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("debug", pf.Lookup("debug"))
	_ = viper.BindPFlag("tts.engine", pf.Lookup("engine"))
	_ = viper.BindPFlag("tts.voice", pf.Lookup("voice"))
	_ = viper.BindPFlag("tts.rate", f.Lookup("rate"))
	_ = viper.BindPFlag("tts.pitch", f.Lookup("pitch"))
	_ = viper.BindPFlag("tts.speed_read.words_per_chunk", f.Lookup("words"))
	_ = viper.BindPFlag("width", f.Lookup("width"))
	_ = viper.BindPFlag("mouse", f.Lookup("mouse"))

	viper.SetDefault("width", 0)
	viper.SetDefault("mouse", false)
	tts.SetDefaults()

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, statsCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readaloud")}, dirs...)
	}

	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readaloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readaloud")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "readaloud.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
}

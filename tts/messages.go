package tts

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/clarityread/readaloud/tts/highlight"
	ttssync "github.com/clarityread/readaloud/tts/sync"
)

// Messages for Bubble Tea communication between the service and the UI.

// StatusMsg reports a playback status change.
type StatusMsg struct {
	Session uint64
	Status  Status
}

// HighlightMsg reports a change of the highlighted unit.
type HighlightMsg struct {
	Session  uint64
	Kind     ttssync.Kind
	Position int
	Units    []highlight.Unit // set for ready events only
}

// ChunkMsg reports a chunk submitted to the engine.
type ChunkMsg struct {
	ChunkInfo
}

// ErrorMsg reports a session error from the message stream.
type ErrorMsg struct {
	Err error
}

func (e ErrorMsg) Error() string {
	return e.Err.Error()
}

// CommandErrorMsg reports a command that failed, such as a start request
// rejected by a guard. It does not come from the message stream.
type CommandErrorMsg struct {
	Err error
}

func (e CommandErrorMsg) Error() string {
	return e.Err.Error()
}

// WaitForMsg returns a command that blocks until the service emits its
// next message. The UI re-issues it after every message it handles.
func (s *Service) WaitForMsg() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-s.msgs
		if !ok {
			return nil
		}
		return msg
	}
}

// StartCmd starts reading req asynchronously.
func (s *Service) StartCmd(req ReadRequest) tea.Cmd {
	return s.command(func() error { return s.ctrl.Start(req) })
}

// SpeedReadCmd starts speed-reading req asynchronously.
func (s *Service) SpeedReadCmd(req SpeedReadRequest) tea.Cmd {
	return s.command(func() error { return s.ctrl.SpeedRead(req) })
}

// PauseCmd pauses playback asynchronously.
func (s *Service) PauseCmd() tea.Cmd {
	return s.command(s.ctrl.Pause)
}

// ResumeCmd resumes playback asynchronously.
func (s *Service) ResumeCmd() tea.Cmd {
	return s.command(s.ctrl.Resume)
}

// ToggleCmd pauses or resumes playback asynchronously.
func (s *Service) ToggleCmd() tea.Cmd {
	return s.command(s.toggle)
}

// StopCmd stops playback asynchronously.
func (s *Service) StopCmd() tea.Cmd {
	return s.command(func() error {
		s.ctrl.Stop()
		return nil
	})
}

func (s *Service) command(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := s.do(s.ctx, fn); err != nil {
			return CommandErrorMsg{Err: err}
		}
		return nil
	}
}

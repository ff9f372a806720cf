package command

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/clarityread/readaloud/tts"
)

func TestArgs(t *testing.T) {
	espeak := &Engine{}
	args := espeak.Args(&tts.Utterance{Text: "hi", Rate: 1.2, Pitch: 2.5, Voice: "en-gb"})
	want := []string{"-s", "210", "-p", "99", "-v", "en-gb", "--stdin"}
	if !slices.Equal(args, want) {
		t.Errorf("espeak Args() = %v, want %v", args, want)
	}
	args = espeak.Args(&tts.Utterance{Text: "hi"})
	if !slices.Equal(args, []string{"-s", "175", "-p", "50", "--stdin"}) {
		t.Errorf("espeak default Args() = %v", args)
	}

	say := &Engine{say: true}
	args = say.Args(&tts.Utterance{Text: "hi", Rate: 0.8, Voice: "Alex"})
	want = []string{"-r", "140", "-v", "Alex", "-f", "-"}
	if !slices.Equal(args, want) {
		t.Errorf("say Args() = %v, want %v", args, want)
	}
}

func TestParseEspeakVoices(t *testing.T) {
	out := `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 2  en-gb           --/M      English_(Great_Britain) gmw/en
 2  en-us           --/M      English_(America)  gmw/en-US
`
	voices := ParseEspeakVoices(out)
	if len(voices) != 3 {
		t.Fatalf("got %d voices, want 3", len(voices))
	}
	if voices[1].Name != "English (Great Britain)" || voices[1].Language != "en-gb" {
		t.Errorf("voice = %+v", voices[1])
	}
	if !voices[2].Default || voices[0].Default {
		t.Error("en-us should be the default voice")
	}
}

func TestParseSayVoices(t *testing.T) {
	out := `Alex                en_US    # Most people recognize me by my voice.
Eddy (English (UK)) en_GB    # Hello! My name is Eddy.

`
	voices := ParseSayVoices(out)
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].ID != "Alex" || voices[0].Language != "en-US" {
		t.Errorf("voice 0 = %+v", voices[0])
	}
	if voices[1].Name != "Eddy (English (UK))" || voices[1].Language != "en-GB" {
		t.Errorf("voice 1 = %+v", voices[1])
	}
}

func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "espeak-ng")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func record(events chan string, text string) *tts.Utterance {
	return &tts.Utterance{Text: text, Events: tts.UtteranceEvents{
		OnStart:  func() { events <- "start" },
		OnPause:  func() { events <- "pause" },
		OnResume: func() { events <- "resume" },
		OnEnd:    func() { events <- "end" },
		OnError:  func(info tts.ErrorInfo) { events <- "error:" + info.Message },
	}}
}

func expect(t *testing.T, events chan string, want string) {
	t.Helper()
	select {
	case got := <-events:
		if got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestEngineSpeaks(t *testing.T) {
	e := New(Options{Binary: script(t, "cat > /dev/null")})
	defer e.Close()
	if !e.Available() {
		t.Fatal("Available() = false")
	}

	events := make(chan string, 8)
	_ = e.Speak(record(events, "one"))
	_ = e.Speak(record(events, "two"))
	expect(t, events, "start")
	expect(t, events, "end")
	expect(t, events, "start")
	expect(t, events, "end")
}

func TestEngineReportsFailure(t *testing.T) {
	e := New(Options{Binary: script(t, "cat > /dev/null\necho 'no voice' >&2\nexit 2")})
	defer e.Close()

	events := make(chan string, 8)
	_ = e.Speak(record(events, "x"))
	expect(t, events, "start")
	expect(t, events, "error:no voice")
}

func TestEnginePauseResume(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no job control")
	}
	e := New(Options{Binary: script(t, "cat > /dev/null\nsleep 0.2")})
	defer e.Close()

	events := make(chan string, 8)
	_ = e.Speak(record(events, "long"))
	expect(t, events, "start")

	e.Pause()
	expect(t, events, "pause")
	if !e.Paused() || !e.Speaking() {
		t.Error("engine should be speaking and paused")
	}
	e.Resume()
	expect(t, events, "resume")
	expect(t, events, "end")
}

func TestEngineCancel(t *testing.T) {
	e := New(Options{Binary: script(t, "cat > /dev/null\nsleep 5")})
	defer e.Close()

	events := make(chan string, 8)
	_ = e.Speak(record(events, "first"))
	_ = e.Speak(record(events, "second"))
	expect(t, events, "start")

	e.Cancel()
	if e.Speaking() {
		t.Error("Speaking() = true after Cancel")
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected event after Cancel: %q", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEngineWithoutCommand(t *testing.T) {
	e := New(Options{Binary: filepath.Join(t.TempDir(), "missing")})
	defer e.Close()
	if e.Available() {
		t.Error("Available() = true without a command")
	}
	if err := e.Speak(&tts.Utterance{Text: "hi"}); err == nil {
		t.Error("Speak() should fail without a command")
	}
}

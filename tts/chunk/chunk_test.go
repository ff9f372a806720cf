package chunk_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/clarityread/readaloud/tts/chunk"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		max     int
		want    []int
		wantErr error
	}{
		{name: "empty", text: "", max: 10, want: []int{}},
		{name: "shorter than max", text: "Hello world. This is ClarityRead.", max: 1800, want: []int{33}},
		{name: "exact multiple", text: strings.Repeat("a", 20), max: 10, want: []int{10, 10}},
		{name: "long text", text: strings.Repeat("x", 5000), max: 1800, want: []int{1800, 1800, 1400}},
		{name: "multibyte runes", text: strings.Repeat("é", 7), max: 3, want: []int{3, 3, 1}},
		{name: "zero size", text: "abc", max: 0, wantErr: chunk.ErrInvalidChunkSize},
		{name: "negative size", text: "abc", max: -4, wantErr: chunk.ErrInvalidChunkSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chunk.Split(tt.text, tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Split() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			if len(got) != len(tt.want) {
				t.Fatalf("Split() returned %d chunks, want %d", len(got), len(tt.want))
			}
			for i, c := range got {
				if n := chunk.Runes(c); n != tt.want[i] {
					t.Errorf("chunk %d has %d runes, want %d", i, n, tt.want[i])
				}
				if c == "" {
					t.Errorf("chunk %d is empty", i)
				}
			}
			if joined := strings.Join(got, ""); joined != tt.text {
				t.Errorf("chunks do not reconstruct input")
			}
		})
	}
}

func TestSplitReconstructs(t *testing.T) {
	inputs := []string{
		"a",
		"The quick brown fox jumps over the lazy dog.",
		"  leading and trailing  ",
		"日本語のテキストを読み上げます。",
		strings.Repeat("word ", 731),
	}

	for _, text := range inputs {
		for n := 1; n < 40; n++ {
			got, err := chunk.Split(text, n)
			if err != nil {
				t.Fatalf("Split(%q, %d) error = %v", text, n, err)
			}
			if strings.Join(got, "") != text {
				t.Fatalf("Split(%q, %d) does not reconstruct", text, n)
			}
			for i := 0; i < len(got)-1; i++ {
				if chunk.Runes(got[i]) != n {
					t.Fatalf("Split(%q, %d): chunk %d has %d runes", text, n, i, chunk.Runes(got[i]))
				}
			}
		}
	}
}

func TestWords(t *testing.T) {
	text := "  one two three\nfour five  "

	got, err := chunk.Words(text, 2)
	if err != nil {
		t.Fatalf("Words() error = %v", err)
	}
	want := []string{"  one two ", "three\nfour ", "five  "}
	if len(got) != len(want) {
		t.Fatalf("Words() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := chunk.Words(text, 0); !errors.Is(err, chunk.ErrInvalidChunkSize) {
		t.Errorf("Words(0) error = %v, want ErrInvalidChunkSize", err)
	}

	empty, err := chunk.Words("", 3)
	if err != nil || len(empty) != 0 {
		t.Errorf("Words(\"\") = %q, %v; want empty", empty, err)
	}
}

func TestScanner(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Hello world. This is ClarityRead.", []string{"Hello ", "world. ", "This ", "is ", "ClarityRead."}},
		{"   padded", []string{"   padded"}},
		{"   ", []string{"   "}},
		{"a\tb\n\nc", []string{"a\t", "b\n\n", "c"}},
		{"", nil},
	}

	for _, tt := range tests {
		s := chunk.NewScanner(tt.text)
		var got []string
		for s.Scan() {
			got = append(got, s.Text())
		}
		if len(got) != len(tt.want) {
			t.Errorf("Scan(%q) = %q, want %q", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Scan(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
			}
		}
		if s.Offset() != len(tt.text) {
			t.Errorf("Offset() = %d after scanning %q", s.Offset(), tt.text)
		}
	}
}

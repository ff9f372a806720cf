package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"heading and paragraph",
			"# Title\n\nSome *emphasis* and `code`.\n",
			"Title\n\nSome emphasis and code.",
		},
		{
			"code block dropped",
			"Before.\n\n```go\nfmt.Println(1)\n```\n\nAfter.",
			"Before.\n\nAfter.",
		},
		{
			"links and images read by text",
			"See [the docs](https://example.com) and ![a cat](cat.png).",
			"See the docs and a cat.",
		},
		{
			"autolink",
			"Visit <https://example.com> now.",
			"Visit https://example.com now.",
		},
		{
			"list items on their own lines",
			"- one\n- two\n\nEnd.",
			"one\ntwo\n\nEnd.",
		},
		{
			"soft breaks join lines",
			"first line\nsecond line",
			"first line second line",
		},
		{
			"front matter removed",
			"---\ntitle: x\n---\nBody text.",
			"Body text.",
		},
		{
			"html dropped",
			"<div>hidden</div>\n\nShown.",
			"Shown.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText([]byte(tt.in)); got != tt.want {
				t.Errorf("PlainText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	doc, err := Static{Label: "arg", Text: "# Hi\n\nthere", Markdown: true}.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if doc.Text != "Hi\n\nthere" || doc.Raw != "# Hi\n\nthere" {
		t.Errorf("doc = %+v", doc)
	}

	if _, err := (Static{Text: "  \n\t"}).Load(context.Background()); !errors.Is(err, ErrEmpty) {
		t.Errorf("blank text error = %v, want ErrEmpty", err)
	}
	if _, err := (Static{Text: "```\ncode only\n```", Markdown: true}).Load(context.Background()); !errors.Is(err, ErrEmpty) {
		t.Errorf("code-only markdown error = %v, want ErrEmpty", err)
	}
}

func TestFromArg(t *testing.T) {
	dir := t.TempDir()
	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# Read me"), 0o644); err != nil {
		t.Fatal(err)
	}
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("*not markdown*"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := FromArg(dir)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Markdown || doc.Text != "Read me" {
		t.Errorf("README doc = %+v", doc)
	}

	src, _ = FromArg(notes)
	doc, _ = src.Load(context.Background())
	if doc.Markdown || doc.Text != "*not markdown*" {
		t.Errorf("text doc = %+v", doc)
	}

	if src, _ := FromArg("-"); src.Name() != "stdin" {
		t.Errorf("FromArg(-) = %v", src.Name())
	}
	if _, err := FromArg("ftp://example.com/x"); err == nil {
		t.Error("ftp should be rejected")
	}
	if _, err := FromArg(t.TempDir()); err == nil {
		t.Error("directory without a README should fail")
	}
	if _, err := FromArg(filepath.Join(dir, "missing.md")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.md" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("## Remote\n\nfile"))
	}))
	defer srv.Close()

	src, err := FromArg(srv.URL + "/doc.md")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if doc.Text != "Remote\n\nfile" {
		t.Errorf("Text = %q", doc.Text)
	}

	src, _ = FromArg(srv.URL + "/missing.md")
	if _, err := src.Load(context.Background()); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Load() error = %v, want HTTP 404", err)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs := make(chan Document, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, File{Path: path}, 20*time.Millisecond, func(d Document) { docs <- d }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-docs:
		if d.Text != "second" {
			t.Errorf("reloaded text = %q, want %q", d.Text, "second")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

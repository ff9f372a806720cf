// Package source loads the text to be read aloud: literal text, files,
// stdin, URLs, the clipboard, and markdown reduced to its spoken text.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mitchellh/go-homedir"
)

// ErrEmpty is returned when a source holds no text.
var ErrEmpty = errors.New("source is empty")

var readmeNames = []string{"README.md", "README", "Readme.md", "Readme", "readme.md", "readme"}

var markdownExtensions = []string{".md", ".mdown", ".mkdn", ".mkd", ".markdown"}

// Document is loaded text.
type Document struct {
	// Name is a path, URL or label for the text.
	Name string
	// Raw is the text as loaded.
	Raw string
	// Text is what gets spoken: Raw, or its plain text for markdown.
	Text     string
	Markdown bool
}

// Source loads a Document.
type Source interface {
	Name() string
	Load(ctx context.Context) (Document, error)
}

func newDocument(name, raw string, markdown bool) (Document, error) {
	d := Document{Name: name, Raw: raw, Text: raw, Markdown: markdown}
	if markdown {
		d.Text = PlainText([]byte(raw))
	}
	if strings.TrimSpace(d.Text) == "" {
		return d, ErrEmpty
	}
	return d, nil
}

// IsMarkdown reports whether path has a markdown extension.
func IsMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range markdownExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// Static is literal text.
type Static struct {
	Label    string
	Text     string
	Markdown bool
}

// Name implements Source.
func (s Static) Name() string { return s.Label }

// Load implements Source.
func (s Static) Load(context.Context) (Document, error) {
	return newDocument(s.Label, s.Text, s.Markdown)
}

// File is a file on disk.
type File struct {
	Path string
}

// Name implements Source.
func (f File) Name() string { return f.Path }

// Load implements Source.
func (f File) Load(context.Context) (Document, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return Document{}, fmt.Errorf("unable to open file: %w", err)
	}
	return newDocument(f.Path, string(b), IsMarkdown(f.Path))
}

// Reader is text read once from a stream such as stdin.
type Reader struct {
	Label    string
	R        io.Reader
	Markdown bool
}

// Name implements Source.
func (r Reader) Name() string { return r.Label }

// Load implements Source.
func (r Reader) Load(context.Context) (Document, error) {
	b, err := io.ReadAll(r.R)
	if err != nil {
		return Document{}, fmt.Errorf("unable to read from reader: %w", err)
	}
	return newDocument(r.Label, string(b), r.Markdown)
}

// URL is an HTTP(S) document.
type URL struct {
	URL    string
	Client *http.Client
}

// Name implements Source.
func (u URL) Name() string { return u.URL }

// Load implements Source.
func (u URL) Load(ctx context.Context) (Document, error) {
	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return Document{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("unable to get url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, fmt.Errorf("unable to read response: %w", err)
	}
	markdown := IsMarkdown(req.URL.Path) || strings.Contains(resp.Header.Get("Content-Type"), "markdown")
	return newDocument(u.URL, string(b), markdown)
}

// Clipboard is the system clipboard.
type Clipboard struct{}

// Name implements Source.
func (Clipboard) Name() string { return "clipboard" }

// Load implements Source.
func (Clipboard) Load(context.Context) (Document, error) {
	if clipboard.Unsupported {
		return Document{}, errors.New("clipboard is not supported on this system")
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return Document{}, fmt.Errorf("unable to read clipboard: %w", err)
	}
	return newDocument("clipboard", text, false)
}

// FromArg resolves a command line argument to a source: "-" for stdin, an
// http(s) URL, a directory holding a README, or a file.
func FromArg(arg string) (Source, error) {
	if arg == "-" {
		return Reader{Label: "stdin", R: os.Stdin}, nil
	}

	if u, err := url.ParseRequestURI(arg); err == nil && strings.Contains(arg, "://") {
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
		}
		return URL{URL: u.String()}, nil
	}

	if arg == "" {
		arg = "."
	}
	path, err := homedir.Expand(arg)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	if !st.IsDir() {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("unable to get absolute path: %w", err)
		}
		return File{Path: abs}, nil
	}

	for _, name := range readmeNames {
		p := filepath.Join(path, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			abs, _ := filepath.Abs(p)
			return File{Path: abs}, nil
		}
	}
	return nil, errors.New("missing markdown source")
}

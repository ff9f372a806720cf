package source

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	md         = goldmark.New()
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// PlainText reduces markdown to the text a listener should hear. Code
// blocks, raw HTML and front matter are dropped; links and images are
// read by their text.
func PlainText(src []byte) string {
	src = RemoveFrontmatter(src)
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	endBlock := func(sep string) {
		s := strings.TrimRight(b.String(), " \t")
		b.Reset()
		b.WriteString(s)
		if b.Len() > 0 {
			b.WriteString(sep)
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if !entering {
				break
			}
			b.Write(n.Segment.Value(src))
			switch {
			case n.HardLineBreak():
				b.WriteByte('\n')
			case n.SoftLineBreak():
				b.WriteByte(' ')
			}
		case *ast.String:
			if entering {
				b.Write(n.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(n.Label(src))
			}
		case *ast.Paragraph, *ast.Heading:
			if !entering {
				endBlock("\n\n")
			}
		case *ast.TextBlock:
			if !entering {
				endBlock("\n")
			}
		case *ast.List, *ast.Blockquote:
			if !entering {
				endBlock("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(blankLines.ReplaceAllString(b.String(), "\n\n"))
}

// RemoveFrontmatter strips a leading YAML front matter block.
func RemoveFrontmatter(src []byte) []byte {
	if !bytes.HasPrefix(src, []byte("---\n")) && !bytes.HasPrefix(src, []byte("---\r\n")) {
		return src
	}
	rest := src[3:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return src
	}
	rest = rest[end+4:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		return rest[i+1:]
	}
	return nil
}

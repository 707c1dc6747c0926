// Package help renders the panel's built-in help page.
package help

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"
)

//go:embed help.md
var helpSource []byte

// Page holds substitutions for the help text.
type Page struct {
	URL        string
	Command    string
	Extensions []string
}

// Render returns the help page as an HTML fragment.
func Render(p Page) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.AlertCallouts,
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	exts := make([]string, len(p.Extensions))
	for i, e := range p.Extensions {
		exts[i] = "`." + e + "`"
	}
	source := strings.NewReplacer(
		"{{URL}}", p.URL,
		"{{COMMAND}}", p.Command,
		"{{EXTENSIONS}}", strings.Join(exts, ", "),
	).Replace(string(helpSource))

	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("rendering help: %w", err)
	}
	return buf.String(), nil
}

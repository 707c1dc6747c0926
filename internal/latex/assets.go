package latex

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/alecthomas/chroma"
	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/styles"
)

// DefaultHighlightStyle is the chroma style used when none is configured.
const DefaultHighlightStyle = "github"

//go:embed preview.css
var previewCSS string

// assetBuilder renders the auxiliary <style> markup shipped with every
// fragment. The highlight CSS is computed once; only the hyphenation rule
// depends on per-conversion options.
type assetBuilder struct {
	style        *chroma.Style
	highlightCSS string
}

func lookupStyle(name string) *chroma.Style {
	if name == "" {
		name = DefaultHighlightStyle
	}
	// styles.Get falls back to the default style for unknown names.
	return styles.Get(name)
}

func newAssetBuilder(style *chroma.Style) (*assetBuilder, error) {
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, style); err != nil {
		return nil, fmt.Errorf("writing %s highlight css: %w", style.Name, err)
	}
	return &assetBuilder{style: style, highlightCSS: buf.String()}, nil
}

func (b *assetBuilder) build(opts Options) string {
	hyphens := "manual"
	if opts.Hyphenate {
		hyphens = "auto"
	}

	var buf bytes.Buffer
	buf.WriteString("<style>\n")
	buf.WriteString(previewCSS)
	buf.WriteString("\n")
	buf.WriteString(b.highlightCSS)
	fmt.Fprintf(&buf, ".latex-preview-view__body { hyphens: %s; -webkit-hyphens: %s; }\n", hyphens, hyphens)
	buf.WriteString("</style>")
	return buf.String()
}

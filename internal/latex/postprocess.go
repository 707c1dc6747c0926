package latex

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma"
	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/lexers"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// mathMLElements are the presentation MathML elements pandoc emits for
// --mathml output.
var mathMLElements = []string{
	"math", "semantics", "annotation", "mrow", "mi", "mn", "mo", "ms",
	"mtext", "mspace", "msup", "msub", "msubsup", "mfrac", "msqrt", "mroot",
	"mover", "munder", "munderover", "mtable", "mtr", "mtd", "mstyle",
	"mpadded", "mphantom", "menclose", "merror",
}

var mathMLAttrs = []string{
	"display", "xmlns", "mathvariant", "stretchy", "fence", "form", "accent",
	"accentunder", "encoding", "columnalign", "rowspacing", "columnspacing",
	"lspace", "rspace", "displaystyle", "scriptlevel", "width", "height",
	"depth", "linethickness", "notation", "separator", "largeop", "movablelimits",
	"symmetric", "minsize", "maxsize",
}

// skipLanguageClasses are pandoc layout classes that never name a language.
var skipLanguageClasses = map[string]bool{
	"sourceCode":  true,
	"numberLines": true,
	"chroma":      true,
}

// postProcessor sanitises generator output and highlights code listings.
type postProcessor struct {
	policy    *bluemonday.Policy
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

func newPostProcessor(style *chroma.Style) *postProcessor {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class", "id").Globally()
	policy.AllowElements(mathMLElements...)
	policy.AllowAttrs(mathMLAttrs...).OnElements(mathMLElements...)
	policy.AllowElements("section", "figure", "figcaption", "span", "div")

	return &postProcessor{
		policy:    policy,
		formatter: chromahtml.New(chromahtml.WithClasses(true)),
		style:     style,
	}
}

// process sanitises fragment, then replaces every <pre class="lang"><code>
// listing with chroma output.
func (p *postProcessor) process(fragment string) (string, error) {
	clean := p.policy.Sanitize(fragment)
	if !strings.Contains(clean, "<pre") {
		return clean, nil
	}

	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(clean), root)
	if err != nil {
		return "", fmt.Errorf("parsing fragment: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	var listings []*html.Node
	walk(root, func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Pre {
			listings = append(listings, n)
		}
	})
	for _, pre := range listings {
		if err := p.highlight(pre); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("rendering fragment: %w", err)
		}
	}
	return buf.String(), nil
}

func (p *postProcessor) highlight(pre *html.Node) error {
	lang := listingLanguage(pre)
	if lang == "" {
		return nil
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return nil
	}
	lexer = chroma.Coalesce(lexer)

	code := textContent(pre)
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return fmt.Errorf("tokenising %s listing: %w", lang, err)
	}

	var buf bytes.Buffer
	if err := p.formatter.Format(&buf, p.style, it); err != nil {
		return fmt.Errorf("formatting %s listing: %w", lang, err)
	}

	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	replacement, err := html.ParseFragment(&buf, ctx)
	if err != nil {
		return fmt.Errorf("parsing highlighted %s listing: %w", lang, err)
	}

	parent := pre.Parent
	for _, n := range replacement {
		parent.InsertBefore(n, pre)
	}
	parent.RemoveChild(pre)
	return nil
}

// listingLanguage returns the first language-looking class on the pre or its
// code child.
func listingLanguage(pre *html.Node) string {
	candidates := []*html.Node{pre}
	if c := pre.FirstChild; c != nil && c.Type == html.ElementNode && c.DataAtom == atom.Code {
		candidates = append(candidates, c)
	}
	for _, n := range candidates {
		for _, a := range n.Attr {
			if a.Key != "class" {
				continue
			}
			for _, cls := range strings.Fields(a.Val) {
				cls = strings.TrimPrefix(cls, "language-")
				if !skipLanguageClasses[cls] {
					return strings.ToLower(cls)
				}
			}
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

package latex

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultPandoc is the generator binary looked up on PATH.
const DefaultPandoc = "pandoc"

// PandocConverter converts LaTeX by invoking the Pandoc CLI, then sanitises
// and highlights the resulting fragment. Use NewPandocConverter; tests may
// swap Runner afterwards.
type PandocConverter struct {
	Runner CommandRunner
	// Binary is the pandoc executable. Empty means DefaultPandoc.
	Binary string

	post   *postProcessor
	assets *assetBuilder
}

// PandocOptions configures NewPandocConverter.
type PandocOptions struct {
	Binary string
	// HighlightStyle names the chroma style used for code listings.
	HighlightStyle string
}

// NewPandocConverter creates a PandocConverter with a real command runner.
func NewPandocConverter(opts PandocOptions) (*PandocConverter, error) {
	style := lookupStyle(opts.HighlightStyle)
	assets, err := newAssetBuilder(style)
	if err != nil {
		return nil, err
	}
	return &PandocConverter{
		Runner: ExecRunner{},
		Binary: opts.Binary,
		post:   newPostProcessor(style),
		assets: assets,
	}, nil
}

// Args returns the generator arguments. Source is read from stdin and the
// output is a bare HTML5 fragment with MathML equations.
func (c *PandocConverter) Args() []string {
	return []string{"--from", "latex", "--to", "html5", "--mathml", "--no-highlight", "--wrap", "none"}
}

// Convert runs pandoc over source.
func (c *PandocConverter) Convert(ctx context.Context, source string, opts Options) (*Artifact, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &ConversionError{Err: ErrEmptySource}
	}

	binary := c.Binary
	if binary == "" {
		binary = DefaultPandoc
	}

	stdout, stderr, err := c.Runner.Run(ctx, source, binary, c.Args()...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return nil, &ConversionError{Stderr: strings.TrimSpace(stderr), Err: err}
	}

	fragment, err := c.post.process(stdout)
	if err != nil {
		return nil, &ConversionError{Err: fmt.Errorf("post-processing output: %w", err)}
	}

	return &Artifact{Fragment: fragment, Assets: c.assets.build(opts)}, nil
}

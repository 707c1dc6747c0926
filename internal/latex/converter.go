// Package latex turns LaTeX source into a displayable HTML fragment plus the
// style markup the fragment needs. The typesetting itself is delegated to an
// external generator; this package only drives it and post-processes output.
package latex

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptySource is returned for source text with no content.
var ErrEmptySource = errors.New("latex source is empty")

// Options configures a single conversion.
type Options struct {
	// Hyphenate lets the browser hyphenate body text.
	Hyphenate bool
}

// Artifact is the result of one conversion. Nothing in it is cached across
// conversions.
type Artifact struct {
	// Fragment is the rendered document body.
	Fragment string
	// Assets is auxiliary style/script markup the fragment depends on.
	Assets string
}

// Converter converts LaTeX source. Implementations are safe for concurrent use.
type Converter interface {
	Convert(ctx context.Context, source string, opts Options) (*Artifact, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, source string, opts Options) (*Artifact, error)

func (f ConverterFunc) Convert(ctx context.Context, source string, opts Options) (*Artifact, error) {
	return f(ctx, source, opts)
}

// ConversionError reports a generator failure.
type ConversionError struct {
	// Stderr is the generator's diagnostic output, if any.
	Stderr string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("converting latex: %s: %v", e.Stderr, e.Err)
	}
	return fmt.Sprintf("converting latex: %v", e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Package panel models the regions a view draws into. A Container stands in
// for a leaf's content element and each Element for one child div; browsers
// receive Snapshot output over the panel transport.
package panel

import (
	"html"
	"maps"
	"sync"

	"go-latex-preview/internal/contracts"
)

// Element is one region of a container. Content is either escaped text or
// trusted HTML, never both.
type Element struct {
	c     *Container
	class string
	attrs map[string]string

	text   string
	html   string
	isHTML bool
}

// Class returns the CSS class the element was created with.
func (e *Element) Class() string { return e.class }

// Empty removes all content from the element.
func (e *Element) Empty() {
	e.c.mutate(func() {
		e.text = ""
		e.html = ""
		e.isHTML = false
	})
}

// SetText replaces the element's content with plain text.
func (e *Element) SetText(text string) {
	e.c.mutate(func() {
		e.text = text
		e.html = ""
		e.isHTML = false
	})
}

// SetHTML replaces the element's content with markup.
func (e *Element) SetHTML(markup string) {
	e.c.mutate(func() {
		e.text = ""
		e.html = markup
		e.isHTML = true
	})
}

// SetAttr sets an attribute rendered on the element's wrapper.
func (e *Element) SetAttr(name, value string) {
	e.c.mutate(func() {
		if e.attrs == nil {
			e.attrs = make(map[string]string)
		}
		e.attrs[name] = value
	})
}

// Attr returns an attribute value.
func (e *Element) Attr(name string) (string, bool) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok
}

// Text returns the plain text content, or "" when the element holds markup.
func (e *Element) Text() string {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	return e.text
}

// HTML returns the element's content as markup, escaping plain text.
func (e *Element) HTML() string {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	return e.renderLocked()
}

// IsEmpty reports whether the element has no content.
func (e *Element) IsEmpty() bool {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	return e.text == "" && e.html == ""
}

func (e *Element) renderLocked() string {
	if e.isHTML {
		return e.html
	}
	return html.EscapeString(e.text)
}

// Container is the root element of a leaf. Mutations made inside Batch are
// published as a single change.
type Container struct {
	mu       sync.Mutex
	class    string
	children []*Element

	// idle is signalled when the last open Batch returns.
	idle      *sync.Cond
	batching  int
	dirty     bool
	listeners []func()
}

// NewContainer returns an empty container carrying class.
func NewContainer(class string) *Container {
	c := &Container{class: class}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Class returns the container's CSS class.
func (c *Container) Class() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.class
}

// CreateDiv appends a new child region.
func (c *Container) CreateDiv(class string) *Element {
	e := &Element{c: c, class: class}
	c.mutate(func() {
		c.children = append(c.children, e)
	})
	return e
}

// Children returns the child regions in creation order.
func (c *Container) Children() []*Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Element, len(c.children))
	copy(out, c.children)
	return out
}

// OnChange registers fn to run after every published change.
func (c *Container) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Batch runs fn with change notifications held back, then publishes once.
// Snapshot blocks while a batch is open, so no snapshot observes the state
// between the first and last mutation of fn. fn must not call Snapshot.
func (c *Container) Batch(fn func()) {
	c.mu.Lock()
	c.batching++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.batching--
		notify := c.batching == 0 && c.dirty
		if notify {
			c.dirty = false
		}
		if c.batching == 0 {
			c.idle.Broadcast()
		}
		listeners := c.listeners
		c.mu.Unlock()
		if notify {
			for _, l := range listeners {
				l()
			}
		}
	}()

	fn()
}

// Snapshot returns the wire form of the container once no batch is open.
func (c *Container) Snapshot() contracts.PanelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.batching > 0 {
		c.idle.Wait()
	}

	state := contracts.PanelState{
		Class:   c.class,
		Regions: make([]contracts.RegionState, 0, len(c.children)),
	}
	for _, e := range c.children {
		region := contracts.RegionState{Class: e.class, HTML: e.renderLocked()}
		if len(e.attrs) > 0 {
			region.Attrs = maps.Clone(e.attrs)
		}
		state.Regions = append(state.Regions, region)
	}
	return state
}

func (c *Container) mutate(fn func()) {
	c.mu.Lock()
	fn()
	if c.batching > 0 {
		c.dirty = true
		c.mu.Unlock()
		return
	}
	listeners := c.listeners
	c.mu.Unlock()

	for _, l := range listeners {
		l()
	}
}

// Package fake is an in-memory uidriver.Driver used to unit test the
// scraping core without a browser. Tests build a node tree mirroring the
// slice of the portal under test and attach hooks that mutate the tree the
// way the real application re-renders: swapping subtrees, marking old
// handles stale, revealing rows after a scroll.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bussola-backend/lib/uidriver"
)

// Node is one element in the fake document.
type Node struct {
	ID      string
	Classes []string
	Attrs   map[string]string
	// Text is the rendered text content.
	Text string
	// Value mirrors an <input>'s current value.
	Value string
	// Options and Selected model a <select>. Attribute "title" reflects
	// Selected, matching how the portal exposes the chosen label.
	Options  []string
	Selected string
	// Stale marks a handle whose underlying node was replaced; every
	// operation through an existing Element fails with ErrStale.
	Stale bool

	Children []*Node

	// Hooks fire after the corresponding action succeeds.
	OnClick  func(n *Node)
	OnSelect func(n *Node, label string)
	OnKeys   func(n *Node, text string)
}

func (n *Node) hasClass(c string) bool {
	for _, have := range n.Classes {
		if have == c {
			return true
		}
	}
	return false
}

// matches implements the locator subset the core actually uses: exact id,
// exact class, and comma-separated CSS alternatives of the forms
// [id*='sub'], [name*='sub'], .class and #id.
func (n *Node) matches(loc uidriver.Locator) bool {
	switch loc.By {
	case uidriver.ByID:
		return n.ID == loc.Value
	case uidriver.ByClass:
		return n.hasClass(loc.Value)
	case uidriver.ByCSS:
		for _, alt := range strings.Split(loc.Value, ",") {
			if n.matchesCSS(strings.TrimSpace(alt)) {
				return true
			}
		}
	}
	return false
}

func (n *Node) matchesCSS(sel string) bool {
	switch {
	case strings.HasPrefix(sel, "[id*='"):
		sub := strings.TrimSuffix(strings.TrimPrefix(sel, "[id*='"), "']")
		return strings.Contains(n.ID, sub)
	case strings.HasPrefix(sel, "[name*='"):
		sub := strings.TrimSuffix(strings.TrimPrefix(sel, "[name*='"), "']")
		return strings.Contains(n.Attrs["name"], sub)
	case strings.HasPrefix(sel, "#"):
		return n.ID == sel[1:]
	case strings.HasPrefix(sel, "."):
		return n.hasClass(sel[1:])
	}
	return false
}

func (n *Node) collect(loc uidriver.Locator, out *[]*Node) {
	for _, child := range n.Children {
		if child.matches(loc) {
			*out = append(*out, child)
		}
		child.collect(loc, out)
	}
}

// Driver drives the fake document.
type Driver struct {
	mu      sync.Mutex
	Root    *Node
	Scripts []string
	// OnScript, when set, observes every RunScript call.
	OnScript func(code string)
	URL      string
	closed   int
}

func New() *Driver {
	return &Driver{Root: &Node{ID: "__root__"}}
}

// Attach appends nodes to the document root.
func (d *Driver) Attach(nodes ...*Node) {
	d.Root.Children = append(d.Root.Children, nodes...)
}

// CloseCount reports how many times Close has been called.
func (d *Driver) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.URL = url
	return nil
}

func (d *Driver) Locate(ctx context.Context, loc uidriver.Locator) (uidriver.Element, error) {
	var found []*Node
	d.Root.collect(loc, &found)
	if len(found) == 0 {
		return nil, fmt.Errorf("locate %s: %w", loc, uidriver.ErrNotFound)
	}
	return element{node: found[0]}, nil
}

func (d *Driver) LocateAll(ctx context.Context, loc uidriver.Locator) ([]uidriver.Element, error) {
	var found []*Node
	d.Root.collect(loc, &found)
	out := make([]uidriver.Element, len(found))
	for i, n := range found {
		out[i] = element{node: n}
	}
	return out, nil
}

func (d *Driver) RunScript(ctx context.Context, code string) error {
	d.Scripts = append(d.Scripts, code)
	if d.OnScript != nil {
		d.OnScript(code)
	}
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

type element struct {
	node *Node
}

func (e element) guard() error {
	if e.node.Stale {
		return uidriver.ErrStale
	}
	return nil
}

func (e element) Text(ctx context.Context) (string, error) {
	if err := e.guard(); err != nil {
		return "", err
	}
	return e.node.Text, nil
}

func (e element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.guard(); err != nil {
		return "", false, err
	}
	switch name {
	case "value":
		return e.node.Value, true, nil
	case "title":
		if e.node.Selected != "" {
			return e.node.Selected, true, nil
		}
	}
	v, ok := e.node.Attrs[name]
	return v, ok, nil
}

func (e element) Click(ctx context.Context) error {
	if err := e.guard(); err != nil {
		return err
	}
	if e.node.OnClick != nil {
		e.node.OnClick(e.node)
	}
	return nil
}

func (e element) SendKeys(ctx context.Context, text string) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.node.Value += text
	if e.node.OnKeys != nil {
		e.node.OnKeys(e.node, text)
	}
	return nil
}

func (e element) SelectByLabel(ctx context.Context, label string) error {
	if err := e.guard(); err != nil {
		return err
	}
	for _, opt := range e.node.Options {
		if opt == label {
			e.node.Selected = opt
			if e.node.OnSelect != nil {
				e.node.OnSelect(e.node, label)
			}
			return nil
		}
	}
	return fmt.Errorf("select %q: %w", label, uidriver.ErrOptionNotFound)
}

func (e element) Locate(ctx context.Context, loc uidriver.Locator) (uidriver.Element, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	var found []*Node
	e.node.collect(loc, &found)
	if len(found) == 0 {
		return nil, fmt.Errorf("locate %s: %w", loc, uidriver.ErrNotFound)
	}
	return element{node: found[0]}, nil
}

func (e element) LocateAll(ctx context.Context, loc uidriver.Locator) ([]uidriver.Element, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	var found []*Node
	e.node.collect(loc, &found)
	out := make([]uidriver.Element, len(found))
	for i, n := range found {
		out[i] = element{node: n}
	}
	return out, nil
}

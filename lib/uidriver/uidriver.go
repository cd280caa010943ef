// Package uidriver defines the capability surface the SIAFE scraping core
// consumes to drive a remote, asynchronously-rendering web UI. Concrete
// drivers (chromedp, the in-memory fake) live in subpackages; the core only
// ever sees these interfaces.
package uidriver

import (
	"context"
	"errors"
	"fmt"
)

// Strategy selects how a Locator's value is interpreted.
type Strategy int

const (
	ByID Strategy = iota
	ByCSS
	ByClass
)

func (s Strategy) String() string {
	switch s {
	case ByID:
		return "id"
	case ByCSS:
		return "css"
	case ByClass:
		return "class"
	}
	return "unknown"
}

// Locator identifies zero or more elements in the remote document.
type Locator struct {
	By    Strategy
	Value string
}

func ID(value string) Locator    { return Locator{By: ByID, Value: value} }
func CSS(value string) Locator   { return Locator{By: ByCSS, Value: value} }
func Class(value string) Locator { return Locator{By: ByClass, Value: value} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.By, l.Value)
}

var (
	// ErrNotFound reports that no element matched a locator within the
	// driver's implicit wait window.
	ErrNotFound = errors.New("element not found")
	// ErrStale reports that an element reference points at a DOM node that
	// has since been replaced by a re-render.
	ErrStale = errors.New("stale element reference")
	// ErrOptionNotFound reports that a <select> has no option with the
	// requested visible label.
	ErrOptionNotFound = errors.New("option not found")
)

func IsNotFound(err error) bool       { return errors.Is(err, ErrNotFound) }
func IsStale(err error) bool          { return errors.Is(err, ErrStale) }
func IsOptionNotFound(err error) bool { return errors.Is(err, ErrOptionNotFound) }

// Transient reports whether err is a DOM inconsistency that is worth
// recovering from by re-resolving the element and retrying.
func Transient(err error) bool {
	return IsStale(err) || IsNotFound(err)
}

// Element is a handle to one located element. Handles are invalidated by
// remote re-renders; any method may fail with ErrStale after that point,
// in which case the caller should re-resolve through a Locate call.
type Element interface {
	// Text returns the rendered text content of the element.
	Text(ctx context.Context) (string, error)
	// Attribute returns the element's live property of that name when one
	// is defined (value, checked and friends track user input; the DOM
	// attribute never does), falling back to the attribute list, and
	// whether either was present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	// SelectByLabel picks the option whose visible label matches exactly.
	SelectByLabel(ctx context.Context, label string) error
	// Locate resolves a single descendant element.
	Locate(ctx context.Context, loc Locator) (Element, error)
	// LocateAll resolves all matching descendants, possibly none.
	LocateAll(ctx context.Context, loc Locator) ([]Element, error)
}

// Driver is one automation session against the remote application. All
// calls are strictly sequential; a Driver is never shared between
// goroutines.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// Locate resolves a single element, polling up to the driver's
	// configured implicit wait before failing with ErrNotFound.
	Locate(ctx context.Context, loc Locator) (Element, error)
	// LocateAll resolves all matching elements without the implicit wait;
	// an empty result is not an error.
	LocateAll(ctx context.Context, loc Locator) ([]Element, error)
	// RunScript evaluates javascript in the page context.
	RunScript(ctx context.Context, code string) error
	Close() error
}

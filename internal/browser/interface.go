// internal/browser/interface.go
package browser

import (
	"context"
	"errors"
)

// Sentinel errors shared by every Page implementation. Callers match them with errors.Is.
var (
	// ErrNotFound reports that nothing matched a locator at this instant.
	ErrNotFound = errors.New("browser: element not found")
	// ErrStale reports that a handle refers to a node that was re-rendered or removed.
	ErrStale = errors.New("browser: element is stale")
	// ErrUnsupportedLocator reports a locator strategy the implementation cannot evaluate.
	ErrUnsupportedLocator = errors.New("browser: unsupported locator")
	// ErrNotInteractable reports an input action on an element that is not rendered.
	ErrNotInteractable = errors.New("browser: element is not interactable")
)

// Key names a non-printable key understood by Page.PressKey and Element.Press.
type Key string

const (
	KeyEnter     Key = "Enter"
	KeyEscape    Key = "Escape"
	KeyTab       Key = "Tab"
	KeyBackspace Key = "Backspace"
)

// Size is the rendered extent of an element in CSS pixels.
type Size struct {
	Width  float64
	Height float64
}

// Empty reports whether either dimension is zero.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Element is an opaque handle to a node in a live document. Any method may fail
// with ErrStale once the application re-renders the node.
type Element interface {
	// QueryAll returns the descendants matching loc in document order.
	QueryAll(ctx context.Context, loc Locator) ([]Element, error)
	// IsRendered reports whether the node takes part in layout (display, visibility, hidden).
	IsRendered(ctx context.Context) (bool, error)
	BoundingSize(ctx context.Context) (Size, error)
	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present. For "value"
	// the live form property is returned.
	Attribute(ctx context.Context, name string) (string, bool, error)
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Press(ctx context.Context, key Key) error
	// Clear empties a text control.
	Clear(ctx context.Context) error
}

// Page is the document-level capability the search engine consumes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// QueryAll returns every match of loc in document order, possibly none.
	QueryAll(ctx context.Context, loc Locator) ([]Element, error)
	// PressKey sends key to whichever element currently has focus.
	PressKey(ctx context.Context, key Key) error
	ScrollTo(ctx context.Context, x, y int) error
}

// Screenshotter is implemented by pages that can capture the viewport.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// QueryFirst returns the first match of loc under page or ErrNotFound.
func QueryFirst(ctx context.Context, page Page, loc Locator) (Element, error) {
	els, err := page.QueryAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNotFound
	}
	return els[0], nil
}

// IsTransient reports whether err is one of the failures an asynchronously
// re-rendering document produces routinely.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrStale)
}

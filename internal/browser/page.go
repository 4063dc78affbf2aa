// Package browser is the page inspection capability the booking flow drives.
// The state machine only sees Browser and Page, so the CDP implementation can
// be swapped for a fake in tests.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSelectorNotFound = errors.New("browser: no selector matched")
	ErrSessionClosed    = errors.New("browser: session closed")
)

// ResourceType names a class of subresource requests that may be blocked.
type ResourceType string

const (
	ResourceImage ResourceType = "Image"
	ResourceFont  ResourceType = "Font"
	ResourceMedia ResourceType = "Media"
)

// NonEssentialResources are blocked when only the page text matters.
var NonEssentialResources = []ResourceType{ResourceImage, ResourceFont, ResourceMedia}

// SessionOptions configures one page session.
type SessionOptions struct {
	BlockResources []ResourceType
}

// Browser hands out page sessions. Every Page returned must be closed.
type Browser interface {
	Open(ctx context.Context, opts SessionOptions) (Page, error)
}

// Page is one tab. Handles are the CSS selectors that resolved.
type Page interface {
	Navigate(ctx context.Context, url string) error

	// FindFirstMatching probes selectors in order, giving each up to
	// perSelector to become visible, and returns the first that does.
	FindFirstMatching(ctx context.Context, selectors []string, perSelector time.Duration) (string, bool)

	// ContainsAnyPhrase looks for any phrase inside the given containers and
	// then in the whole visible text. It returns the text that matched.
	ContainsAnyPhrase(ctx context.Context, containers []string, phrases []string) (string, bool)

	// VisibleText returns the trimmed inner text of each container that exists.
	VisibleText(ctx context.Context, containers []string) ([]string, error)

	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, value string) error

	// WaitForNetworkIdle returns once no requests are in flight, or errors
	// when timeout elapses first.
	WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error

	Close() error
}

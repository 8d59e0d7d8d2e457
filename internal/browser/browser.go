// Package browser drives a headless Chrome against venue pages.
//
// The orchestrator only sees the Browser and Session interfaces; Chrome is
// the chromedp-backed implementation.
package browser

import (
	"context"
	"time"

	"github.com/busyness-collector/internal/types"
)

// Options configure one browser session.
type Options struct {
	UserAgent         string
	Proxy             *types.Proxy
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	PageTimeout       time.Duration
}

// Browser opens isolated sessions. The context passed to Open bounds the
// lifetime of the session.
type Browser interface {
	Open(ctx context.Context, opts Options) (Session, error)
}

// Session is one browser process with one tab.
type Session interface {
	// Navigate loads url and returns the main document's HTTP status.
	Navigate(url string) (int, error)
	// Scroll focuses the main content region and pages down to trigger
	// lazily loaded sections.
	Scroll() error
	// Labels returns the accessible labels of every element whose label
	// contains substr, in document order.
	Labels(substr string) ([]string, error)
	// Content returns the serialized page HTML.
	Content() (string, error)
	Close() error
}

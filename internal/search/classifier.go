package search

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/searchprobe/internal/browser"
)

// Classifier runs an ordered list of probes against an overlay.
type Classifier struct {
	Probes []Probe
}

// NewClassifier returns a classifier using probes in order.
func NewClassifier(probes []Probe) *Classifier {
	return &Classifier{Probes: probes}
}

// Classify returns the state named by the first matching probe, or Unsettled.
// A nil overlay is Unsettled.
func (c *Classifier) Classify(ctx context.Context, overlay browser.Element) (SurfaceState, error) {
	if overlay == nil {
		return SurfaceState{}, nil
	}
	for _, p := range c.Probes {
		state, ok, err := p.Match(ctx, overlay)
		if err != nil {
			return SurfaceState{}, fmt.Errorf("probe %s: %w", p.Name, err)
		}
		if ok {
			return state, nil
		}
	}
	return SurfaceState{}, nil
}

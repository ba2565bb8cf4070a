package search

import "fmt"

// Kind discriminates SurfaceState.
type Kind int

const (
	// Unsettled is the zero value: loading, or nothing recognisable yet.
	Unsettled Kind = iota
	HasResults
	NoResults
	// HistoryEmpty is the empty-history view shown after a clear and before a
	// query loads. It is observed, never settled on.
	HistoryEmpty
)

func (k Kind) String() string {
	switch k {
	case Unsettled:
		return "unsettled"
	case HasResults:
		return "has_results"
	case NoResults:
		return "no_results"
	case HistoryEmpty:
		return "history_empty"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SurfaceState is what the overlay shows at one instant. Count is meaningful
// only for HasResults.
type SurfaceState struct {
	Kind  Kind
	Count int
}

// Settled reports whether s is a terminal state for a query.
func (s SurfaceState) Settled() bool { return s.Kind == HasResults || s.Kind == NoResults }

func (s SurfaceState) String() string {
	if s.Kind == HasResults {
		return fmt.Sprintf("%s(%d)", s.Kind, s.Count)
	}
	return s.Kind.String()
}

func resultsState(count int) SurfaceState {
	return SurfaceState{Kind: HasResults, Count: count}
}

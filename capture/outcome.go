package capture

import "fmt"

// Strategy names the extraction path that produced a region's bytes.
type Strategy int

const (
	MappedCopy Strategy = iota
	StreamedCopy
	PeekReconstructed
)

func (s Strategy) String() string {
	switch s {
	case MappedCopy:
		return "mapped-copy"
	case StreamedCopy:
		return "streamed-copy"
	case PeekReconstructed:
		return "peek-reconstructed"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// OutcomeKind tells Captured, Skipped and Aborted outcomes apart.
type OutcomeKind int

const (
	Captured OutcomeKind = iota
	Skipped
	Aborted
)

func (k OutcomeKind) String() string {
	switch k {
	case Captured:
		return "captured"
	case Skipped:
		return "skipped"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is the result of processing one region.
type Outcome struct {
	Kind OutcomeKind

	// Captured
	Strategy        Strategy
	BytesWritten    int64
	UnreadableWords int // words the peek path could not read, zero-filled

	// Skipped
	Reason string

	// Aborted
	Cause error
}

func capturedOutcome(strategy Strategy, written int64) Outcome {
	return Outcome{Kind: Captured, Strategy: strategy, BytesWritten: written}
}

func skippedOutcome(reason string) Outcome {
	return Outcome{Kind: Skipped, Reason: reason}
}

func abortedOutcome(cause error) Outcome {
	return Outcome{Kind: Aborted, Cause: cause}
}

func (o Outcome) String() string {
	switch o.Kind {
	case Captured:
		if o.UnreadableWords > 0 {
			return fmt.Sprintf("captured (%s, %d bytes, %d unreadable words)", o.Strategy, o.BytesWritten, o.UnreadableWords)
		}
		return fmt.Sprintf("captured (%s, %d bytes)", o.Strategy, o.BytesWritten)
	case Skipped:
		return "skipped (" + o.Reason + ")"
	case Aborted:
		return fmt.Sprintf("aborted (%v)", o.Cause)
	}
	return o.Kind.String()
}

package decoder

import "fmt"

// Codec is the streaming decoder the reader loop feeds. Implementations
// buffer partial frames between calls; Add is never called concurrently.
type Codec interface {
	// Add consumes p and returns the ensembles it completed, in stream
	// order. A non-nil error describes frames that were dropped; the
	// returned ensembles are still valid.
	Add(p []byte) ([]Ensemble, error)

	// DecodeBreak parses the text the instrument prints after a BREAK.
	DecodeBreak(text string) BreakResult
}

// ProtocolError reports a frame the codec could not decode.
type ProtocolError struct {
	Frame  string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Frame == "" {
		return "decode: " + e.Reason
	}
	return fmt.Sprintf("decode %q: %s", truncate(e.Frame, 48), e.Reason)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package debate runs the round-based exchange among AI providers. A session
// is created per topic request, owned by the Run invocation that created it,
// and discarded after the final transcript is returned.
package debate

import (
	"github.com/dmitrijs2005/debatekeeper/internal/bot/providers"
)

// Status is the terminal state of a session.
type Status string

const (
	// StatusComplete marks a normally finished debate, including early
	// termination when fewer than two voices remain.
	StatusComplete Status = "complete"
	// StatusFailed marks a debate aborted before any round could finish
	// meaningfully. Partial transcripts are still returned.
	StatusFailed Status = "failed"
)

// TranscriptEntry is one turn: who spoke, in which round, and what they said.
type TranscriptEntry struct {
	Participant string
	Round       int
	Text        string
}

// Exclusion records why a provider is not (or no longer) part of the session.
type Exclusion struct {
	Provider string
	Reason   string
}

// Result is what a session run hands back to the caller. The transcript is
// always populated with whatever accumulated, even on failure.
type Result struct {
	Topic      string
	Transcript []TranscriptEntry
	Status     Status
	Reason     string
	Excluded   []Exclusion
	Dropped    []Exclusion
	Rounds     int
}

// participant is a provider with a resolved, eligible credential.
type participant struct {
	name   string
	caller providers.Caller
}

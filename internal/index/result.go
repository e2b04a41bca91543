// Package index ties the indexing pipeline and the query path together. The
// Pipeline rebuilds the whole index from the source tree and persists it
// atomically; the Manager serves queries against the latest persisted index,
// reloading when the artifacts on disk are newer than the loaded snapshot.
package index

import "time"

// Status classifies the outcome of a query.
type Status int

const (
	// StatusOK means the query produced an answer.
	StatusOK Status = iota
	// StatusUnavailable means no index exists to query yet.
	StatusUnavailable
	// StatusError means the query failed at some stage.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// UnavailableMessage is returned when queries arrive before the first index
// build has completed.
const UnavailableMessage = "Index not available. Please wait for initial indexing to complete."

// Result is the outcome of a single query.
type Result struct {
	// Status classifies the outcome.
	Status Status
	// Answer is the generated answer, the unavailable message, or an error
	// description depending on Status.
	Answer string
	// Sources are the unique source file paths behind the answer.
	Sources []string
	// Elapsed is the total processing time.
	Elapsed time.Duration
	// Err holds the underlying error when Status is StatusError.
	Err error
}

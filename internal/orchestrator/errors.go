package orchestrator

import "errors"

// Rejection is returned by Submit when a precondition fails. No state changes.
type Rejection string

const (
	RejectEmptyQuery  Rejection = "empty_query"
	RejectTooLong     Rejection = "query_too_long"
	RejectNoDocuments Rejection = "no_documents"
	RejectInFlight    Rejection = "in_flight"
)

func (r Rejection) Error() string {
	switch r {
	case RejectEmptyQuery:
		return "query rejected: query is empty"
	case RejectTooLong:
		return "query rejected: query is too long"
	case RejectNoDocuments:
		return "query rejected: upload a document first"
	case RejectInFlight:
		return "query rejected: a query is already running"
	}
	return "query rejected: " + string(r)
}

// ErrDocumentInUse is returned when removing a document handed to the in-flight query.
var ErrDocumentInUse = errors.New("document is in use by the running query")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("orchestrator closed")

// ErrSuperseded is returned by Await when a newer submission replaced the cycle.
var ErrSuperseded = errors.New("query was replaced by a newer one")

// ErrUnknownGeneration is returned by Await for a generation that was never issued
// or has aged out of the retained history.
var ErrUnknownGeneration = errors.New("unknown query generation")

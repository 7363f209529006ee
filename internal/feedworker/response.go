package feedworker

// Outcome classifies how a request was answered.
type Outcome int

const (
	// OutcomeParseFailure: the query string was malformed (client error).
	OutcomeParseFailure Outcome = iota + 1
	// OutcomeUnexpectedError: normalization, cache read or generation failed.
	OutcomeUnexpectedError
	// OutcomeCacheHit: Body is the cached feed.
	OutcomeCacheHit
	// OutcomeGenerated: Body is a freshly generated feed.
	OutcomeGenerated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeParseFailure:
		return "parse_failure"
	case OutcomeUnexpectedError:
		return "unexpected_error"
	case OutcomeCacheHit:
		return "cache_hit"
	case OutcomeGenerated:
		return "generated"
	default:
		return "unknown"
	}
}

// Response is the result of Worker.Handle. Body holds the encoded Atom
// document for the two success outcomes; Err holds the cause otherwise.
type Response struct {
	Outcome Outcome
	Body    []byte
	Err     error
}

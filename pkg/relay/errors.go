package relay

import "fmt"

// APIError wraps a non-2xx HTTP response from a relay call with enough
// detail for the caller to log or surface it.
type APIError struct {
	RelayURL   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay %s returned status %d: %s", e.RelayURL, e.StatusCode, e.Body)
}

// ErrNoBidPrepared is returned by FetchHeader when a relay answers 204: it
// has no bid for this request, not a failure.
var ErrNoBidPrepared = fmt.Errorf("relay has no bid prepared")

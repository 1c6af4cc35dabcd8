package pipeline

import "errors"

var (
	// ErrFeedExhausted means every batch within the retry cap was already seen.
	ErrFeedExhausted = errors.New("pipeline: feed exhausted")

	// ErrAuthExpired means the session cannot be recovered without authorizing again.
	ErrAuthExpired = errors.New("pipeline: authorization expired")

	// ErrBusy rejects a GetNext issued while another is still running.
	ErrBusy = errors.New("pipeline: a request is already in flight")
)

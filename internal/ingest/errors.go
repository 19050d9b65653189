package ingest

import (
	"errors"
	"fmt"
)

// RetryableError marks a submission attempt that is eligible for another
// try: HTTP 429, any 5xx, or a transport-level failure.
type RetryableError struct {
	Status int
	Err    error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retryable submission failure: %v", e.Err)
	}
	return fmt.Sprintf("retryable status code: %d", e.Status)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// RejectedError marks a terminal rejection: any non-2xx status outside the
// retryable set. It is never retried.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("unexpected status code: %d - %s", e.Status, e.Body)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// retryableStatus reports whether an HTTP status is transient overload or
// server error.
func retryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status <= 599)
}

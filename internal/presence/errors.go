package presence

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no signed-in identity. Reporting aborts and
	// nothing is retried until the user signs in.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRetryable marks failures the next evaluation may recover from.
	ErrRetryable = errors.New("retryable")

	ErrStoreRead  = fmt.Errorf("store read failure: %w", ErrRetryable)
	ErrStoreWrite = fmt.Errorf("store write failure: %w", ErrRetryable)
)

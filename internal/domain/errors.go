package domain

import (
	"errors"
	"fmt"
)

// ErrValidation marks failures caused by the job's input rather than by
// infrastructure. Retrying a job that failed with it cannot succeed.
var ErrValidation = errors.New("validation failed")

// ErrInvalidPayload marks a queue row whose stored payload does not decode.
var ErrInvalidPayload = fmt.Errorf("%w: undecodable job payload", ErrValidation)

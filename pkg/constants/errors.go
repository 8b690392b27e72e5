package constants

import "errors"

// Errors
var (
	ErrInvalidResponse = errors.New("invalid Strand response")
	ErrTimeout         = errors.New("timeout")
	ErrNoBaseURL       = errors.New("base url not set")
	ErrNoMarshaler     = errors.New("marshaler is not set")
	ErrNoUnmarshaler   = errors.New("unmarshaler is not set")
	ErrNoAPIKey        = errors.New("api key is not set")
)

var (
	// ErrInvalidArgument reports malformed or mutually exclusive caller
	// inputs. It is detected before any network call and never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidContinuation reports a continuation token that failed
	// structural validation. The message casing matters: wrapped errors
	// produce literal strings such as "Invalid continuation: [Missing mode]"
	// which callers match on.
	ErrInvalidContinuation = errors.New("Invalid continuation")

	// ErrMalformedFeedRange reports a feed range encoding that cannot be
	// decoded into a well-formed range.
	ErrMalformedFeedRange = errors.New("malformed feed range")

	// ErrModeMismatch reports an attempt to resume a continuation under a
	// different change feed mode than the one it was created with.
	ErrModeMismatch = errors.New("mode mismatch")
)

package vmi

import (
	"fmt"
	"os"
	"strconv"
)

// Kind classifies a VMIError.
type Kind int

const (
	// KindNotEnabled means an operation was attempted without the
	// events-enabled init flag set.
	KindNotEnabled Kind = iota
	// KindBadArgument means a nil subscription, nil callback, wrong event
	// type for the operation, or a zero step count.
	KindBadArgument
	// KindAlreadyExists means a registration collided with an existing key.
	KindAlreadyExists
	// KindNotFound means a clear targeted a subscription with no matching
	// registry entry.
	KindNotFound
	// KindDriverRejected means the driver refused the requested change;
	// the registry is left exactly as it was before the call.
	KindDriverRejected
	// KindMaskInvalid means combining access masks produced Invalid
	// (an X_on_Write conflict).
	KindMaskInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotEnabled:
		return "not enabled"
	case KindBadArgument:
		return "bad argument"
	case KindAlreadyExists:
		return "already exists"
	case KindNotFound:
		return "not found"
	case KindDriverRejected:
		return "driver rejected"
	case KindMaskInvalid:
		return "mask invalid"
	default:
		return "unknown"
	}
}

// VMIError is the concrete error type returned by every Session operation.
type VMIError struct {
	Kind Kind
	// detail is additional context, trimmed in the sanitized form.
	detail string
	// err wraps a driver-returned error, if any.
	err error
}

func (e *VMIError) Error() string {
	if isProductionEnv() {
		return e.sanitizedError()
	}
	return e.detailedError()
}

func (e *VMIError) Unwrap() error {
	return e.err
}

func (e *VMIError) detailedError() string {
	msg := "vmi: " + e.Kind.String()
	if e.detail != "" {
		msg += ": " + e.detail
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *VMIError) sanitizedError() string {
	return "vmi: " + e.Kind.String()
}

// isProductionEnv mirrors the teacher's opt-in verbosity switch, gated on
// the module's own env vars instead of the Hypervisor.framework ones.
func isProductionEnv() bool {
	env := os.Getenv("VMI_ENV")
	if env == "production" || env == "prod" {
		return true
	}
	if debug := os.Getenv("VMI_DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil && !val {
			return true
		}
	}
	return false
}

func newErr(kind Kind, detail string) *VMIError {
	return &VMIError{Kind: kind, detail: detail}
}

func newErrf(kind Kind, format string, args ...any) *VMIError {
	return &VMIError{Kind: kind, detail: fmt.Sprintf(format, args...)}
}

func wrapDriverErr(detail string, err error) *VMIError {
	return &VMIError{Kind: KindDriverRejected, detail: detail, err: err}
}

// Sentinel errors for the common, argument-independent cases, so callers
// can compare with errors.Is without inspecting Kind directly.
var (
	ErrNotEnabled  = &VMIError{Kind: KindNotEnabled, detail: "session not initialized with events enabled"}
	ErrNilSub      = &VMIError{Kind: KindBadArgument, detail: "nil subscription"}
	ErrNilCallback = &VMIError{Kind: KindBadArgument, detail: "nil callback"}
)

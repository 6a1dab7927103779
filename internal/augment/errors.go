package augment

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/kweilin/lessonforge/internal/llm"
)

// FailureKind classifies why a batch failed. Every kind is terminal for the
// batch; the split exists for operator diagnosis, not for retry logic.
type FailureKind int

const (
	// FailValidation: the response parsed but violated the structural
	// contract (item count mismatch).
	FailValidation FailureKind = iota
	// FailParse: malformed structured output, or a response long enough to
	// be suspected of truncation.
	FailParse
	FailRateLimit
	FailAuth
	FailNetwork
	FailUnknown
)

func (k FailureKind) String() string {
	switch k {
	case FailValidation:
		return "Validation"
	case FailParse:
		return "Parse"
	case FailRateLimit:
		return "RateLimit"
	case FailAuth:
		return "Auth"
	case FailNetwork:
		return "Network"
	default:
		return "Unknown"
	}
}

// BatchError is the single error type the augmentation client returns.
type BatchError struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func (e *BatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}

func newBatchError(kind FailureKind, message string) *BatchError {
	return &BatchError{Kind: kind, Message: message}
}

func wrapBatchError(kind FailureKind, message string, cause error) *BatchError {
	return &BatchError{Kind: kind, Message: message, Cause: cause}
}

// IsKind reports whether err is a BatchError of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// classifyTransport maps a failed external call to a FailureKind.
func classifyTransport(err error) FailureKind {
	var apiErr *llm.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return FailRateLimit
		case http.StatusUnauthorized, http.StatusForbidden:
			return FailAuth
		}
		msg := strings.ToLower(apiErr.Message + " " + apiErr.Type)
		switch {
		case strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"):
			return FailRateLimit
		case strings.Contains(msg, "api key"), strings.Contains(msg, "authentication"), strings.Contains(msg, "permission"):
			return FailAuth
		}
		return FailUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) || os.IsTimeout(err) {
		return FailNetwork
	}
	if strings.Contains(strings.ToLower(err.Error()), "connection") {
		return FailNetwork
	}
	return FailUnknown
}

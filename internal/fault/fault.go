// Package fault provides the shared error taxonomy for lifecycle and
// platform call failures, and the classifier used by the task runner and
// the webhook handler.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// ErrAuthInvalid indicates an outbound platform call was rejected for
// authentication reasons (401). It is the only kind the task runner
// remediates, with a single token refresh.
var ErrAuthInvalid = errors.New("platform rejected credentials")

// ErrUnauthorized indicates an inbound app-route request failed the
// bearer-secret check.
var ErrUnauthorized = errors.New("unauthorized")

// ErrConfiguration indicates the framework was asked to operate on an
// installation it cannot identify (no installation id resolvable).
var ErrConfiguration = errors.New("installation id not resolvable")

// UpstreamError carries a non-2xx, non-401 response from the platform API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Kind classifies a failure for the runner finalizer and metrics.
type Kind int

const (
	// KindNone means no failure.
	KindNone Kind = iota
	// KindAuthInvalid is the single remediable kind.
	KindAuthInvalid
	// KindUpstream is a non-2xx platform response.
	KindUpstream
	// KindTimeout is a detached task exceeding its deadline.
	KindTimeout
	// KindSchema is a payload the framework could not decode into the
	// expected shape.
	KindSchema
	// KindUnclassified is everything else: app-author bugs that must be
	// surfaced in logs because the webhook response is already gone.
	KindUnclassified
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindUpstream:
		return "upstream"
	case KindTimeout:
		return "timeout"
	case KindSchema:
		return "schema"
	default:
		return "unclassified"
	}
}

// SchemaError wraps a decode failure so Classify can tell protocol noise
// apart from programming errors.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string { return "schema: " + e.Err.Error() }

func (e *SchemaError) Unwrap() error { return e.Err }

// Classify maps an error to its failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrAuthInvalid) {
		return KindAuthInvalid
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return KindUpstream
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var schema *SchemaError
	if errors.As(err, &schema) {
		return KindSchema
	}
	return KindUnclassified
}

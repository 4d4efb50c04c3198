package receiver

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/weaveworks/webhook-bridge/types"
)

const (
	reasonInvalidJSON      = "invalid JSON payload"
	reasonEmptyOrMalformed = "payload empty or malformed"

	// Raw payload dumps are debug-only and capped; see maxDumpedBody.
	maxDumpedBody = 4096
)

// MalformedPayloadError means the request body could not be decoded as a
// notification batch, or decoded to something without the top-level
// collection. Reason is the fixed string surfaced to the caller.
type MalformedPayloadError struct {
	Reason string
	cause  error
}

func (e *MalformedPayloadError) Error() string {
	if e.cause != nil {
		return e.Reason + ": " + e.cause.Error()
	}
	return e.Reason
}

// Cause returns the underlying decode error, if any.
func (e *MalformedPayloadError) Cause() error { return e.cause }

// ParseBatch decodes a raw request body into a notification batch.
//
// Individual records are decoded permissively: the upstream source is
// trusted for shape but not completeness, so absent fields on a record are
// accepted at parse time. Only an undecodable body or a missing top-level
// "value" collection fails. On failure the raw body is dumped to the debug
// log, truncated, before the error is surfaced.
func ParseBatch(body []byte) (types.NotificationBatch, error) {
	// Value is a pointer so that a present-but-empty collection can be
	// told apart from a missing one.
	var decoded struct {
		Value *[]types.Notification `json:"value"`
	}

	if err := json.Unmarshal(body, &decoded); err != nil {
		dumpBody("cannot decode notification payload", body)
		return types.NotificationBatch{}, &MalformedPayloadError{Reason: reasonInvalidJSON, cause: err}
	}
	if decoded.Value == nil {
		dumpBody("notification payload has no value collection", body)
		return types.NotificationBatch{}, &MalformedPayloadError{Reason: reasonEmptyOrMalformed}
	}

	return types.NotificationBatch{Value: *decoded.Value}, nil
}

func dumpBody(msg string, body []byte) {
	if len(body) > maxDumpedBody {
		body = body[:maxDumpedBody]
	}
	log.Debugf("%s, body: %q", msg, body)
}

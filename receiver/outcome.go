package receiver

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

const ackBody = "notification accepted"

type outcomeKind int

const (
	outcomeValidationEcho outcomeKind = iota
	outcomeAcknowledged
	outcomeBadRequest
	outcomeMethodNotAllowed
	outcomeInternalError
)

// DispatchOutcome is the single decision the dispatcher reaches for one
// request. It fixes the HTTP status and body; internal error detail is
// logged where the fault happens and never leaks into the response.
type DispatchOutcome struct {
	kind   outcomeKind
	detail string
}

// ValidationEcho answers the subscription handshake with the caller's token.
func ValidationEcho(token string) DispatchOutcome {
	return DispatchOutcome{kind: outcomeValidationEcho, detail: token}
}

// Acknowledged reports the notification batch as received, whether or not
// forwarding succeeded.
func Acknowledged() DispatchOutcome {
	return DispatchOutcome{kind: outcomeAcknowledged}
}

// BadRequest rejects the request with the given reason.
func BadRequest(reason string) DispatchOutcome {
	return DispatchOutcome{kind: outcomeBadRequest, detail: reason}
}

// MethodNotAllowed rejects the request with an explanation of the
// unsupported method/branch.
func MethodNotAllowed(explanation string) DispatchOutcome {
	return DispatchOutcome{kind: outcomeMethodNotAllowed, detail: explanation}
}

// InternalError converts an unexpected fault into a generic 500.
func InternalError() DispatchOutcome {
	return DispatchOutcome{kind: outcomeInternalError}
}

func (o DispatchOutcome) write(w http.ResponseWriter) {
	switch o.kind {
	case outcomeValidationEcho:
		// The upstream handshake compares the echoed value byte for byte,
		// so the token is written verbatim.
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, o.detail)
	case outcomeAcknowledged:
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, ackBody)
	case outcomeBadRequest:
		requestsError.With(prometheus.Labels{"status_code": http.StatusText(http.StatusBadRequest)}).Inc()
		http.Error(w, o.detail, http.StatusBadRequest)
	case outcomeMethodNotAllowed:
		requestsError.With(prometheus.Labels{"status_code": http.StatusText(http.StatusMethodNotAllowed)}).Inc()
		http.Error(w, o.detail, http.StatusMethodNotAllowed)
	case outcomeInternalError:
		requestsError.With(prometheus.Labels{"status_code": http.StatusText(http.StatusInternalServerError)}).Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

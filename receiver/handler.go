package receiver

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/weaveworks/webhook-bridge/publisher"
)

const validationTokenParam = "validationtoken"

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_requests_total",
		Help: "Number of webhook requests by dispatch branch.",
	}, []string{"branch"})

	requestsError = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_request_errors_total",
		Help: "Number of webhook requests answered with an error status.",
	}, []string{"status_code"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestsError)
}

// Handler dispatches inbound webhook requests: subscription-validation
// handshake, notification intake, or rejection.
type Handler struct {
	pipeline *Pipeline
}

// New creates a Handler forwarding notifications to pub. A nil pub is
// allowed and disables forwarding.
func New(pub publisher.Publisher) *Handler {
	return &Handler{pipeline: NewPipeline(pub)}
}

// Register HTTP handlers
func (h *Handler) Register(r *mux.Router) {
	for _, route := range []struct {
		name, path string
		handler    http.Handler
	}{
		// All methods route to the webhook handler: the method branching,
		// including 405s, is the dispatcher's.
		{"webhook", "/webhook", http.HandlerFunc(h.WebhookHandler)},
		{"hello", "/hello", http.HandlerFunc(HelloHandler)},
		{"health_check", "/healthcheck", http.HandlerFunc(h.HandleHealthCheck)},
	} {
		r.Handle(route.path, route.handler).Name(route.name)
	}
}

// WebhookHandler produces exactly one DispatchOutcome per request and
// writes it. Faults in later stages never escape this boundary.
func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	h.dispatch(r).write(w)
}

func (h *Handler) dispatch(r *http.Request) (out DispatchOutcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("unhandled fault dispatching %s %s: %v", r.Method, r.URL.Path, p)
			out = InternalError()
		}
	}()

	token := r.URL.Query().Get(validationTokenParam)

	switch {
	case r.Method == http.MethodPost && token != "":
		requestsTotal.With(prometheus.Labels{"branch": "validation"}).Inc()
		log.Infof("validation handshake on POST, echoing token (%d bytes)", len(token))
		return ValidationEcho(token)

	case r.Method == http.MethodPost:
		requestsTotal.With(prometheus.Labels{"branch": "intake"}).Inc()
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			log.Errorf("cannot read notification body: %s", err)
			return BadRequest("cannot read body")
		}
		log.Infof("notification intake, %d byte payload", len(body))
		return h.pipeline.Intake(r.Context(), body)

	case r.Method == http.MethodGet && token != "":
		// Manual and diagnostic invocations validate over GET.
		requestsTotal.With(prometheus.Labels{"branch": "validation"}).Inc()
		log.Infof("validation handshake on GET, echoing token (%d bytes)", len(token))
		return ValidationEcho(token)

	case r.Method == http.MethodGet:
		requestsTotal.With(prometheus.Labels{"branch": "rejected"}).Inc()
		log.Warnf("GET without %s parameter, rejecting", validationTokenParam)
		return MethodNotAllowed(fmt.Sprintf("GET requires a %s query parameter", validationTokenParam))

	default:
		requestsTotal.With(prometheus.Labels{"branch": "rejected"}).Inc()
		log.Warnf("unsupported method %s, rejecting", r.Method)
		return MethodNotAllowed(fmt.Sprintf("method %s not allowed", r.Method))
	}
}

// HandleHealthCheck handles a very simple health check
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HelloHandler is a liveness/echo probe: it greets the name given in the
// query string or, failing that, the request body.
func HelloHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	name := r.URL.Query().Get("name")
	if name == "" {
		body, err := ioutil.ReadAll(r.Body)
		if err == nil {
			name = strings.TrimSpace(string(body))
		}
	}
	if name == "" {
		name = "World"
	}

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Hello, %s!", name)
}

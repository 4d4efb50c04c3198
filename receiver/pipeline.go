package receiver

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/weaveworks/webhook-bridge/publisher"
	"github.com/weaveworks/webhook-bridge/types"
)

var (
	notificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_received_total",
		Help: "Number of change notifications received from the webhook.",
	})

	forwardingSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_forwarding_skipped_total",
		Help: "Number of batches acknowledged without a configured publisher.",
	})
)

func init() {
	prometheus.MustRegister(notificationsTotal, forwardingSkipped)
}

// Pipeline turns a raw webhook body into queue messages and forwards them.
//
// Forwarding is best-effort: the upstream notifier enforces a tight
// response deadline and suspends subscriptions that miss it, so a publish
// failure (or an unconfigured publisher) is logged and the batch is
// acknowledged anyway. Delivery guarantees are the queue consumer's
// problem, not this boundary's. Reviewed trade-off, not an oversight.
type Pipeline struct {
	pub publisher.Publisher
}

// NewPipeline creates a pipeline forwarding to pub. A nil pub disables
// forwarding; batches are still parsed and acknowledged.
func NewPipeline(pub publisher.Publisher) *Pipeline {
	return &Pipeline{pub: pub}
}

// Intake parses the body, transforms each notification into exactly one
// queue message, publishes the batch if it is non-empty, and reports the
// outcome. Only a malformed payload is surfaced to the caller.
func (p *Pipeline) Intake(ctx context.Context, body []byte) DispatchOutcome {
	batch, err := ParseBatch(body)
	if err != nil {
		merr, ok := err.(*MalformedPayloadError)
		if !ok {
			log.Errorf("unexpected parse error: %s", err)
			return InternalError()
		}
		log.Warnf("rejecting notification payload: %s", merr)
		return BadRequest(merr.Reason)
	}

	notificationsTotal.Add(float64(len(batch.Value)))

	if p.pub == nil {
		forwardingSkipped.Inc()
		log.Warnf("no queue destination configured, acknowledging %d notifications without forwarding", len(batch.Value))
		return Acknowledged()
	}

	msgs := make([]types.QueueMessage, 0, len(batch.Value))
	for _, n := range batch.Value {
		if n.ChangeType == nil {
			log.Debugf("notification for subscription %s carries no change type", n.SubscriptionID)
		}
		msgs = append(msgs, types.NewQueueMessage(n))
	}

	if len(msgs) == 0 {
		log.Info("received empty notification batch, nothing to forward")
		return Acknowledged()
	}

	if err := p.pub.Publish(ctx, msgs); err != nil {
		// Best-effort forwarding: swallow the failure, acknowledge anyway.
		log.Warnf("forwarding failed for %d notifications, acknowledging anyway: %s", len(msgs), err)
	}

	return Acknowledged()
}

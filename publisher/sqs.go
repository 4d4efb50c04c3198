package publisher

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/weaveworks/webhook-bridge/types"
)

// SQS caps SendMessageBatch at 10 entries per request.
const sqsBatchSize = 10

// SQSPublisher sends message batches to a single SQS queue.
type SQSPublisher struct {
	client   sqsiface.SQSAPI
	queueURL string
}

// NewSQS creates an SQSPublisher for the given queue URL.
func NewSQS(client sqsiface.SQSAPI, queueURL string) (*SQSPublisher, error) {
	if client == nil {
		return nil, &ConfigurationError{Reason: "SQS client is nil"}
	}
	if queueURL == "" {
		return nil, &ConfigurationError{Reason: "SQS queue URL is empty"}
	}
	return &SQSPublisher{client: client, queueURL: queueURL}, nil
}

// Publish sends the batch in order-preserving SendMessageBatch calls of at
// most sqsBatchSize entries. The batch succeeds or fails as a unit: a
// rejected entry or a failed call fails the whole batch.
func (p *SQSPublisher) Publish(ctx context.Context, msgs []types.QueueMessage) error {
	if len(msgs) == 0 {
		return errors.New("cannot publish an empty batch")
	}

	for _, chunk := range partitionMessages(msgs, sqsBatchSize) {
		input, err := p.chunkToSendInput(chunk)
		if err != nil {
			return errors.Wrap(err, "cannot build SQS send input for batch")
		}

		out, err := p.client.SendMessageBatchWithContext(ctx, input)
		if err == nil && len(out.Failed) > 0 {
			err = errors.Errorf("%d of %d entries rejected by SQS", len(out.Failed), len(chunk))
		}
		if err != nil {
			publishErrors.With(prometheus.Labels{"queue": p.queueURL}).Inc()
			log.Errorf("cannot publish %d messages to queue %s, error: %s", len(msgs), p.queueURL, err)
			return errors.Wrapf(err, "publishing %d messages to queue %s", len(msgs), p.queueURL)
		}
	}

	messagesPublished.With(prometheus.Labels{"queue": p.queueURL}).Add(float64(len(msgs)))
	return nil
}

// partitionMessages takes a slice of messages and partitions it into
// chunks of at most size elements, preserving order.
func partitionMessages(msgs []types.QueueMessage, size int) [][]types.QueueMessage {
	var chunk []types.QueueMessage
	var chunks [][]types.QueueMessage

	for len(msgs) >= size {
		chunk, msgs = msgs[:size], msgs[size:]
		chunks = append(chunks, chunk)
	}

	if len(msgs) > 0 {
		chunks = append(chunks, msgs)
	}

	return chunks
}

func (p *SQSPublisher) chunkToSendInput(msgs []types.QueueMessage) (*sqs.SendMessageBatchInput, error) {
	var entries []*sqs.SendMessageBatchRequestEntry
	for i, msg := range msgs {
		raw, err := json.Marshal(msg.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot marshal notification for subscription %s", msg.Body.SubscriptionID)
		}
		entries = append(entries, &sqs.SendMessageBatchRequestEntry{
			Id:          aws.String(strconv.Itoa(i)),
			MessageBody: aws.String(string(raw)),
			MessageAttributes: map[string]*sqs.MessageAttributeValue{
				"ContentType": {
					DataType:    aws.String("String"),
					StringValue: aws.String(msg.ContentType),
				},
			},
		})
	}
	return &sqs.SendMessageBatchInput{
		Entries:  entries,
		QueueUrl: aws.String(p.queueURL),
	}, nil
}

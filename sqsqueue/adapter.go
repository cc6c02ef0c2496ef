package sqsqueue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/google/uuid"
	"github.com/sambatech/gotasks"
)

const whenLayout = "02/01/06 15:04:05"

// defaultVisibilityTimeout and defaultReceiveWait are the queue creation
// attributes mandated by SPEC_FULL.md §6.
const (
	defaultVisibilityTimeout = 120
	defaultReceiveWait       = 2
)

// Adapter is the concrete tasks.QueueAdapter backed by AWS SQS, grounded on
// qhenkart-gosqs/consumer.go and publisher.go's session/queue-URL handling.
type Adapter struct {
	sqs      *sqs.SQS
	queueURL string
	cfg      Config
}

// NewAdapter resolves (or, if CreateIfMissing, creates) the target queue and
// returns a ready Adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	sess, err := buildSession(cfg)
	if err != nil {
		return nil, err
	}

	a := &Adapter{sqs: sqs.New(sess), queueURL: cfg.QueueURL, cfg: cfg}
	if a.queueURL != "" {
		return a, nil
	}

	urlInput := &sqs.GetQueueUrlInput{QueueName: &cfg.QueueName}
	if cfg.AWSAccountID != "" {
		urlInput.QueueOwnerAWSAccountId = &cfg.AWSAccountID
	}
	out, err := a.sqs.GetQueueUrl(urlInput)
	if err == nil {
		a.queueURL = *out.QueueUrl
		return a, nil
	}
	if !cfg.CreateIfMissing {
		return nil, tasks.ErrQueueURL.Context(err)
	}

	vis := cfg.VisibilityTimeout
	if vis == 0 {
		vis = defaultVisibilityTimeout
	}
	wait := cfg.ReceiveWaitSeconds
	if wait == 0 {
		wait = defaultReceiveWait
	}

	created, err := a.sqs.CreateQueue(&sqs.CreateQueueInput{
		QueueName: &cfg.QueueName,
		Attributes: map[string]*string{
			sqs.QueueAttributeNameVisibilityTimeout:             aws.String(strconv.Itoa(vis)),
			sqs.QueueAttributeNameReceiveMessageWaitTimeSeconds: aws.String(strconv.Itoa(wait)),
		},
	})
	if err != nil {
		return nil, tasks.ErrQueueURL.Context(err)
	}
	a.queueURL = *created.QueueUrl
	return a, nil
}

// Send marshals attrs to JSON and enqueues a task execution command, filling
// defaults for execID/when per SPEC_FULL.md §3.
func (a *Adapter) Send(ctx context.Context, taskName string, attrs interface{}, delay time.Duration, execID string, when time.Time) error {
	body, err := json.Marshal(attrs)
	if err != nil {
		return tasks.ErrMarshal.Context(err)
	}

	if execID == "" {
		execID = uuid.NewString()
	}
	if when.IsZero() {
		when = time.Now().UTC()
	}

	out := string(body)
	delaySecs := int64(delay.Seconds())

	input := &sqs.SendMessageInput{
		QueueUrl:          &a.queueURL,
		MessageBody:       &out,
		MessageAttributes: taskAttributes(taskName, execID, when.UTC().Format(whenLayout), a.cfg.Attributes),
	}
	if delaySecs > 0 {
		input.DelaySeconds = &delaySecs
	}

	if _, err := a.sqs.SendMessageWithContext(ctx, input); err != nil {
		return tasks.ErrPublish.Context(err)
	}
	return nil
}

// Receive long-polls for up to max messages, clamping anything above
// tasks.MaxReceiveBatch per the QueueAdapter contract (tasks/queue.go). The
// Consumer is the one that logs the clamp warning since it owns the
// Logger; Adapter has none to log through.
func (a *Adapter) Receive(ctx context.Context, max int) ([]*tasks.Message, error) {
	if max > tasks.MaxReceiveBatch {
		max = tasks.MaxReceiveBatch
	}
	if max <= 0 {
		return nil, nil
	}
	n := int64(max)
	allAttrs := "All"

	out, err := a.sqs.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              &a.queueURL,
		MaxNumberOfMessages:   &n,
		MessageAttributeNames: []*string{&allAttrs},
		AttributeNames:        []*string{&allAttrs},
	})
	if err != nil {
		return nil, tasks.ErrGetMessage.Context(err)
	}

	msgs := make([]*tasks.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, toTaskMessage(m))
	}
	return msgs, nil
}

// Delete acknowledges and fully consumes a message.
func (a *Adapter) Delete(ctx context.Context, m *tasks.Message) error {
	_, err := a.sqs.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &a.queueURL,
		ReceiptHandle: receiptHandle(m),
	})
	if err != nil {
		return tasks.ErrUnableToDelete.Context(err)
	}
	return nil
}

// ChangeVisibility extends or shortens a message's visibility window.
// Failures are swallowed and reported as false, per the QueueAdapter
// contract in tasks/queue.go -- the caller decides how to recover.
func (a *Adapter) ChangeVisibility(ctx context.Context, m *tasks.Message, newTimeout time.Duration) bool {
	secs := int64(newTimeout.Seconds())
	_, err := a.sqs.ChangeMessageVisibilityWithContext(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &a.queueURL,
		ReceiptHandle:     receiptHandle(m),
		VisibilityTimeout: &secs,
	})
	return err == nil
}

// ApproximateDepth returns ApproximateNumberOfMessages for the queue, used
// by the Consumer's scaling controller (SPEC_FULL.md §4.5).
func (a *Adapter) ApproximateDepth(ctx context.Context) (int, error) {
	attr := sqs.QueueAttributeNameApproximateNumberOfMessages
	out, err := a.sqs.GetQueueAttributesWithContext(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &a.queueURL,
		AttributeNames: []*string{&attr},
	})
	if err != nil {
		return 0, tasks.ErrScaling.Context(err)
	}
	v, ok := out.Attributes[attr]
	if !ok || v == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		return 0, tasks.ErrScaling.Context(err)
	}
	return n, nil
}

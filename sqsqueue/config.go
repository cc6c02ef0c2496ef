// Package sqsqueue is the concrete tasks.QueueAdapter backed by AWS SQS,
// adapted from qhenkart-gosqs's session/config handling (the teacher's only
// domain dependency, github.com/aws/aws-sdk-go).
package sqsqueue

import (
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/sambatech/gotasks"
)

// SessionProviderFunc lets a caller supply its own AWS session construction
// (e.g. an assumed role, a shared SDK session), bypassing newSession.
type SessionProviderFunc func(c Config) (*session.Session, error)

// Config defines connection and queue-creation settings for Adapter, kept
// separate from tasks.Config (which holds only the consumer/producer's
// domain-level settings from SPEC_FULL.md §6).
type Config struct {
	// SessionProvider overrides session construction; defaults to newSession.
	SessionProvider SessionProviderFunc
	// Key/Secret are static AWS credentials.
	Key, Secret string
	// Region selects the AWS region.
	Region string
	// Hostname overrides the SQS endpoint, e.g. for localstack.
	Hostname string
	// AWSAccountID is used when deriving a queue URL from QueueName.
	AWSAccountID string
	// QueueName is the bare queue name; combined with the pool/env naming
	// scheme the caller chooses. Either QueueName or QueueURL must be set.
	QueueName string
	// QueueURL, if set, bypasses QueueName resolution entirely.
	QueueURL string
	// CreateIfMissing creates the queue via CreateQueue when GetQueueUrl
	// fails, using VisibilityTimeout/ReceiveWaitSeconds as its attributes.
	CreateIfMissing bool
	// VisibilityTimeout is the queue's visibility timeout, in seconds.
	// Defaults to 120 per SPEC_FULL.md §6.
	VisibilityTimeout int
	// ReceiveWaitSeconds is the long-poll wait, in seconds. Defaults to 2
	// per SPEC_FULL.md §6.
	ReceiveWaitSeconds int
	// RetryCount bounds the AWS SDK's own exponential-backoff retries.
	RetryCount int
	// Attributes are attached to every message sent through this adapter,
	// e.g. a correlation id, in addition to task_name/exec_id/when.
	Attributes []CustomAttribute
}

// CustomAttribute is an extra SQS message attribute attached to every
// outgoing message, adapted from qhenkart-gosqs/config.go:customAttribute.
type CustomAttribute struct {
	Title    string
	DataType DataType
	Value    string
}

// DataType is an SQS message attribute data type.
type DataType string

const (
	DataTypeString DataType = "String"
	DataTypeNumber DataType = "Number"
)

// NewCustomAttribute builds a CustomAttribute, validating the value against
// dataType the way the teacher's Config.NewCustomAttribute does.
func NewCustomAttribute(dataType DataType, title string, value interface{}) (CustomAttribute, error) {
	if dataType == DataTypeNumber {
		v, ok := value.(int)
		if !ok {
			return CustomAttribute{}, errBadAttrValue
		}
		return CustomAttribute{Title: title, DataType: dataType, Value: strconv.Itoa(v)}, nil
	}
	v, ok := value.(string)
	if !ok {
		return CustomAttribute{}, errBadAttrValue
	}
	return CustomAttribute{Title: title, DataType: dataType, Value: v}, nil
}

type retryer struct {
	client.DefaultRetryer
	retryCount int
}

func (r retryer) MaxRetries() int {
	if r.retryCount > 0 {
		return r.retryCount
	}
	return 10
}

// newSession builds the default AWS session from static credentials,
// adapted from qhenkart-gosqs/config.go:newSession.
func newSession(c Config) (*session.Session, error) {
	creds := credentials.NewStaticCredentials(c.Key, c.Secret, "")
	if _, err := creds.Get(); err != nil {
		return nil, tasks.ErrConfiguration.Context(err)
	}

	r := retryer{retryCount: c.RetryCount}
	cfg := request.WithRetryer(aws.NewConfig().WithRegion(c.Region).WithCredentials(creds), r)

	if c.Hostname != "" {
		cfg.Endpoint = &c.Hostname
	}

	return session.NewSession(cfg)
}

func buildSession(c Config) (*session.Session, error) {
	if c.SessionProvider != nil {
		return c.SessionProvider(c)
	}
	return newSession(c)
}

package sqsqueue

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/sambatech/gotasks"
)

// toTaskMessage converts an sqs.Message into a tasks.Message, adapted from
// qhenkart-gosqs/messages.go's message wrapper (there wrapping *sqs.Message
// directly; here projecting just the attributes/body the core needs).
func toTaskMessage(m *sqs.Message) *tasks.Message {
	attrs := make(map[string]string, 3)
	for _, key := range []string{"task_name", "exec_id", "when"} {
		if v, ok := m.MessageAttributes[key]; ok && v.StringValue != nil {
			attrs[key] = *v.StringValue
		}
	}

	sysAttrs := make(map[string]string, len(m.Attributes))
	for k, v := range m.Attributes {
		if v != nil {
			sysAttrs[k] = *v
		}
	}

	var body []byte
	if m.Body != nil {
		body = []byte(*m.Body)
	}

	return &tasks.Message{
		Body:             body,
		Attributes:       attrs,
		SystemAttributes: sysAttrs,
		Handle:           m.ReceiptHandle,
	}
}

func messageAttributeValue(dataType DataType, value string) *sqs.MessageAttributeValue {
	dt := string(dataType)
	return &sqs.MessageAttributeValue{DataType: &dt, StringValue: &value}
}

func taskAttributes(taskName, execID, when string, extra []CustomAttribute) map[string]*sqs.MessageAttributeValue {
	m := map[string]*sqs.MessageAttributeValue{
		"task_name": messageAttributeValue(DataTypeString, taskName),
		"exec_id":   messageAttributeValue(DataTypeString, execID),
		"when":      messageAttributeValue(DataTypeString, when),
	}
	for _, a := range extra {
		m[a.Title] = messageAttributeValue(a.DataType, a.Value)
	}
	return m
}

func receiptHandle(m *tasks.Message) *string {
	if h, ok := m.Handle.(*string); ok {
		return h
	}
	return aws.String("")
}

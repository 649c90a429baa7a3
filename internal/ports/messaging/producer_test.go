package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, f.err
}

func TestProducerRoutesEventsToQueues(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSProducer(client, "labor-url", "email-url")
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.PublishLabor(context.Background(), LaborEvent{TimeRecordID: 7, EmployeeID: "emp-1", WorkDate: day, HoursWorked: 8}))
	require.NoError(t, p.PublishEmail(context.Background(), EmailEvent{TimeRecordID: 7, EmployeeID: "emp-1", HoursWorked: 8}))
	require.Len(t, client.inputs, 2)

	labor := client.inputs[0]
	assert.Equal(t, "labor-url", *labor.QueueUrl)
	assert.Equal(t, string(EventShiftClosed), *labor.MessageAttributes["EventType"].StringValue)

	var got LaborEvent
	require.NoError(t, json.Unmarshal([]byte(*labor.MessageBody), &got))
	assert.EqualValues(t, 7, got.TimeRecordID)
	assert.Equal(t, "emp-1", got.EmployeeID)
	assert.True(t, got.WorkDate.Equal(day))

	email := client.inputs[1]
	assert.Equal(t, "email-url", *email.QueueUrl)
	assert.Equal(t, string(EventShiftSummary), *email.MessageAttributes["EventType"].StringValue)
}

func TestProducerWrapsSendErrors(t *testing.T) {
	client := &fakeSQS{err: errors.New("queue does not exist")}
	p := NewSQSProducer(client, "labor-url", "email-url")

	err := p.PublishLabor(context.Background(), LaborEvent{EmployeeID: "emp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHIFT_CLOSED")
	assert.Contains(t, err.Error(), "queue does not exist")
}

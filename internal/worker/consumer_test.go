package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu         sync.Mutex
	batches    [][]types.Message
	deleted    []string
	visibility map[string]int32
}

func (q *fakeQueue) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	if len(q.batches) > 0 {
		b := q.batches[0]
		q.batches = q.batches[1:]
		q.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: b}, nil
	}
	q.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *fakeQueue) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, *params.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func (q *fakeQueue) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.visibility[*params.ReceiptHandle] = params.VisibilityTimeout
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

type scriptedProcessor struct {
	mu      sync.Mutex
	outcome map[string]error
	retry   map[string]bool
	handled int
}

func (p *scriptedProcessor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handled++
	body := *msg.Body
	return p.retry[body], 40, p.outcome[body]
}

func message(body string) types.Message {
	return types.Message{MessageId: aws.String("id-" + body), ReceiptHandle: aws.String("rh-" + body), Body: aws.String(body)}
}

func TestWorkerAcknowledgesByOutcome(t *testing.T) {
	q := &fakeQueue{
		batches:    [][]types.Message{{message("ok"), message("retry"), message("poison")}},
		visibility: map[string]int32{},
	}
	proc := &scriptedProcessor{
		outcome: map[string]error{"retry": errors.New("legacy api down"), "poison": errors.New("bad json")},
		retry:   map[string]bool{"retry": true},
	}

	w := NewWorker(q, "queue-url", proc)
	w.Concurrency = 2

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		return proc.handled == 3
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"rh-ok"}, q.deleted)
	assert.Equal(t, map[string]int32{"rh-retry": 40}, q.visibility)
}

func TestBackoff(t *testing.T) {
	assert.EqualValues(t, 10, Backoff(0))
	assert.EqualValues(t, 20, Backoff(1))
	assert.EqualValues(t, 80, Backoff(3))
	assert.EqualValues(t, 2560, Backoff(8))
	assert.Equal(t, MaxBackoff, Backoff(9))
	assert.Equal(t, MaxBackoff, Backoff(60))
	assert.EqualValues(t, 10, Backoff(-1))
}

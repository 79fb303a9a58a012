package schedule_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/usecase/schedule"
)

// fakeQueue records every batch it receives.
type fakeQueue struct {
	mu       sync.Mutex
	max      int
	batches  [][]schedule.QueueMessage
	failIDs  map[string]bool
	failCall int // 1-based call that returns an error, 0 = never
}

func (q *fakeQueue) SendBatch(_ context.Context, msgs []schedule.QueueMessage) (schedule.BatchResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batches = append(q.batches, msgs)
	if q.failCall == len(q.batches) {
		return schedule.BatchResult{}, errors.New("broker unreachable")
	}
	var res schedule.BatchResult
	for _, m := range msgs {
		if q.failIDs[m.ID] {
			res.Failed = append(res.Failed, schedule.FailedEntry{ID: m.ID, Code: "Throttled", Reason: "too many requests"})
		}
	}
	return res, nil
}

func (q *fakeQueue) MaxBatchSize() int { return q.max }

func deliveries(n int) []entity.EligibleDelivery {
	out := make([]entity.EligibleDelivery, n)
	for i := range out {
		out[i] = entity.EligibleDelivery{
			UserID:   fmt.Sprintf("user-%02d", i),
			Timezone: "America/New_York",
			Date:     "2024-01-15",
			Channel:  entity.ChannelEmail,
		}
	}
	return out
}

var fixedNow = time.Date(2024, 1, 15, 13, 0, 5, 0, time.UTC)

func TestProducer_Enqueue_BatchesByMaxSize(t *testing.T) {
	q := &fakeQueue{max: 10}
	p := schedule.NewProducer(q, nil, schedule.WithClock(func() time.Time { return fixedNow }))

	report, err := p.Enqueue(context.Background(), deliveries(12))
	require.NoError(t, err)

	require.Len(t, q.batches, 2)
	assert.Len(t, q.batches[0], 10)
	assert.Len(t, q.batches[1], 2)
	assert.Len(t, report.Accepted, 12)
	assert.Empty(t, report.Failed)
}

func TestProducer_Enqueue_MessageKeys(t *testing.T) {
	q := &fakeQueue{max: 10}
	p := schedule.NewProducer(q, nil, schedule.WithClock(func() time.Time { return fixedNow }))

	_, err := p.Enqueue(context.Background(), deliveries(3))
	require.NoError(t, err)
	require.Len(t, q.batches, 1)

	for i, m := range q.batches[0] {
		user := fmt.Sprintf("user-%02d", i)
		assert.Equal(t, fmt.Sprint(i), m.ID)
		assert.Equal(t, user, m.GroupKey)
		assert.Equal(t, user+"-2024-01-15", m.DedupKey)

		var decoded entity.EligibleDelivery
		require.NoError(t, json.Unmarshal(m.Body, &decoded))
		assert.Equal(t, user, decoded.UserID)
		assert.Equal(t, "2024-01-15", decoded.Date)
		assert.True(t, decoded.EnqueuedAt.Equal(fixedNow))
	}
}

func TestProducer_Enqueue_DedupKeyIsStable(t *testing.T) {
	q := &fakeQueue{max: 10}
	p := schedule.NewProducer(q, nil)
	in := deliveries(1)

	_, err := p.Enqueue(context.Background(), in)
	require.NoError(t, err)
	_, err = p.Enqueue(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, q.batches, 2)
	assert.Equal(t, q.batches[0][0].DedupKey, q.batches[1][0].DedupKey)
	assert.True(t, in[0].EnqueuedAt.IsZero(), "input deliveries must not be modified")
}

func TestProducer_Enqueue_PartialFailureContinues(t *testing.T) {
	// ids are global across batches: "3" is in the first batch, "11" in the second.
	q := &fakeQueue{max: 10, failIDs: map[string]bool{"3": true, "11": true}}
	p := schedule.NewProducer(q, nil)

	report, err := p.Enqueue(context.Background(), deliveries(12))
	require.NoError(t, err)

	assert.Len(t, q.batches, 2)
	assert.Len(t, report.Accepted, 10)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "user-03", report.Failed[0].Delivery.UserID)
	assert.Equal(t, "user-11", report.Failed[1].Delivery.UserID)
	assert.Equal(t, "Throttled", report.Failed[0].Code)
	for _, d := range report.Accepted {
		assert.NotEqual(t, "user-03", d.UserID)
		assert.NotEqual(t, "user-11", d.UserID)
	}
}

func TestProducer_Enqueue_BatchErrorAborts(t *testing.T) {
	q := &fakeQueue{max: 10, failCall: 2}
	p := schedule.NewProducer(q, nil)

	report, err := p.Enqueue(context.Background(), deliveries(25))
	require.Error(t, err)
	assert.ErrorIs(t, err, schedule.ErrEnqueueFailed)

	assert.Len(t, q.batches, 2, "no batch may be sent after a rejected one")
	assert.Len(t, report.Accepted, 10)
}

func TestProducer_Enqueue_WithBatchSize(t *testing.T) {
	q := &fakeQueue{max: 10}
	p := schedule.NewProducer(q, nil, schedule.WithBatchSize(4))

	_, err := p.Enqueue(context.Background(), deliveries(9))
	require.NoError(t, err)

	require.Len(t, q.batches, 3)
	assert.Len(t, q.batches[2], 1)
}

func TestProducer_Enqueue_BatchSizeNeverExceedsTransport(t *testing.T) {
	q := &fakeQueue{max: 10}
	p := schedule.NewProducer(q, nil, schedule.WithBatchSize(50))

	_, err := p.Enqueue(context.Background(), deliveries(12))
	require.NoError(t, err)
	require.Len(t, q.batches, 2)
	assert.Len(t, q.batches[0], 10)
}

func TestProducer_Enqueue_Empty(t *testing.T) {
	q := &fakeQueue{max: 10}
	report, err := schedule.NewProducer(q, nil).Enqueue(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, q.batches)
	assert.Empty(t, report.Accepted)
}

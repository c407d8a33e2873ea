package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	err  error
	seen []Activity
}

func (p *stubPublisher) Publish(ctx context.Context, a Activity) error {
	p.seen = append(p.seen, a)
	return p.err
}

func TestMetricPublisherCountsOutcomes(t *testing.T) {
	ctx := context.Background()
	inner := &stubPublisher{}
	metrics := NewCountingMetrics()
	pub := NewMetricPublisher(inner, metrics)

	require.NoError(t, pub.Publish(ctx, New(TypeSlotSaved, time.Now())))
	require.NoError(t, pub.Publish(ctx, New(TypeSlotSaved, time.Now())))

	inner.err = errors.New("broker down")
	err := pub.Publish(ctx, New(TypeVoteToggled, time.Now()))
	assert.ErrorIs(t, err, inner.err)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.Published[TypeSlotSaved])
	assert.Equal(t, int64(1), snap.Failed[TypeVoteToggled])
	assert.Zero(t, snap.Published[TypeVoteToggled])
	assert.Len(t, inner.seen, 3)
}

func TestMetricPublisherWithoutCollector(t *testing.T) {
	inner := &stubPublisher{err: errors.New("broker down")}
	pub := NewMetricPublisher(inner, nil)

	assert.NotPanics(t, func() {
		assert.ErrorIs(t, pub.Publish(context.Background(), New(TypeSlotSaved, time.Now())), inner.err)
	})
	assert.IsType(t, &NoOpMetricsCollector{}, pub.metrics)
	assert.Len(t, inner.seen, 1)
}

func TestNewStampsIDAndUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, loc)

	a := New(TypeMemberRenamed, at)
	b := New(TypeMemberRenamed, at)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.At.Location())
	assert.True(t, a.At.Equal(at))
	assert.Equal(t, "activity.MemberRenamed", routingKey(a.Type))
}

func TestLogPublisherNeverFails(t *testing.T) {
	slot := 3
	a := New(TypeVoteToggled, time.Now())
	a.SlotID = &slot
	a.Reaction = "loveIt"
	a.Added = true
	assert.NoError(t, NewLogPublisher().Publish(context.Background(), a))
}

package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/helpdesk-micro/tracker-service/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves ids newest-first, optionally hiding already-classified
// ones, the way the service layer does.
type fakeSource struct {
	all     []string
	missing map[string]bool
}

func (s *fakeSource) IDPage(_ context.Context, onlyMissing bool, offset, limit int) ([]string, error) {
	var pool []string
	for _, id := range s.all {
		if onlyMissing && !s.missing[id] {
			continue
		}
		pool = append(pool, id)
	}
	if offset >= len(pool) {
		return nil, nil
	}
	end := offset + limit
	if end > len(pool) {
		end = len(pool)
	}
	return pool[offset:end], nil
}

type fakeQueue struct {
	accepted []string
	capacity int // 0 = unlimited
}

func (q *fakeQueue) Enqueue(id string) bool {
	if q.capacity > 0 && len(q.accepted) >= q.capacity {
		return false
	}
	q.accepted = append(q.accepted, id)
	return true
}

func newDispatcher(src *fakeSource, q *fakeQueue) *Dispatcher {
	return New(src, q, logger.NewNop())
}

func TestSingleEnqueuesOneJob(t *testing.T) {
	q := &fakeQueue{}
	d := newDispatcher(&fakeSource{}, q)
	assert.True(t, d.Single("01A"))
	assert.Equal(t, []string{"01A"}, q.accepted)
}

func TestBulkOnlyMissing(t *testing.T) {
	src := &fakeSource{
		all:     []string{"01C", "01B", "01A"},
		missing: map[string]bool{"01C": true, "01A": true},
	}
	q := &fakeQueue{}
	count, err := newDispatcher(src, q).Bulk(context.Background(), BulkOptions{OnlyMissing: true})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"01C", "01A"}, q.accepted)
}

func TestBulkForceOverridesOnlyMissing(t *testing.T) {
	src := &fakeSource{
		all:     []string{"01C", "01B", "01A"},
		missing: map[string]bool{"01A": true},
	}
	q := &fakeQueue{}
	count, err := newDispatcher(src, q).Bulk(context.Background(), BulkOptions{OnlyMissing: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"01C", "01B", "01A"}, q.accepted)
}

func TestBulkLimitCapsEnqueue(t *testing.T) {
	src := &fakeSource{all: []string{"01E", "01D", "01C", "01B", "01A"}}
	q := &fakeQueue{}
	count, err := newDispatcher(src, q).Bulk(context.Background(), BulkOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"01E", "01D"}, q.accepted)
}

func TestBulkPagesThroughLargeSets(t *testing.T) {
	var all []string
	for i := 0; i < pageSize*2+17; i++ {
		all = append(all, fmt.Sprintf("01-%04d", i))
	}
	src := &fakeSource{all: all}
	q := &fakeQueue{}
	count, err := newDispatcher(src, q).Bulk(context.Background(), BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, len(all), count)
	assert.Equal(t, all, q.accepted)
}

func TestBulkStopsWhenQueueRefuses(t *testing.T) {
	src := &fakeSource{all: []string{"01C", "01B", "01A"}}
	q := &fakeQueue{capacity: 1}
	count, err := newDispatcher(src, q).Bulk(context.Background(), BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBulkEmptyTable(t *testing.T) {
	q := &fakeQueue{}
	count, err := newDispatcher(&fakeSource{}, q).Bulk(context.Background(), BulkOptions{OnlyMissing: true})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, q.accepted)
}

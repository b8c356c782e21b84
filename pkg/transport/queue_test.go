package transport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/absmach/splitfed/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := transport.NewQueue[int]()
	for i := range 5 {
		q.Put(i)
	}
	assert.Equal(t, 5, q.Len())

	ctx := context.Background()
	for i := range 5 {
		got, err := q.Get(ctx)
		require.Nil(t, err)
		assert.Equal(t, i, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueTakeKeepsOrder(t *testing.T) {
	q := transport.NewQueue[string]()
	for _, s := range []string{"a1", "b1", "a2", "b2"} {
		q.Put(s)
	}

	ctx := context.Background()
	got, err := q.Take(ctx, func(s string) bool { return s[0] == 'b' })
	require.Nil(t, err)
	assert.Equal(t, "b1", got)

	var rest []string
	for q.Len() > 0 {
		s, err := q.Get(ctx)
		require.Nil(t, err)
		rest = append(rest, s)
	}
	assert.Equal(t, []string{"a1", "a2", "b2"}, rest)
}

func TestQueueBlocksUntilPut(t *testing.T) {
	q := transport.NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		q.Put(7)
	}()

	got, err := q.Get(ctx)
	require.Nil(t, err)
	assert.Equal(t, 7, got)
	wg.Wait()
}

func TestQueueTakeWaitsForMatch(t *testing.T) {
	q := transport.NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		q.Put(1)
		time.Sleep(10 * time.Millisecond)
		q.Put(3)
		time.Sleep(10 * time.Millisecond)
		q.Put(4)
	}()

	got, err := q.Take(ctx, func(v int) bool { return v%2 == 0 })
	require.Nil(t, err)
	assert.Equal(t, 4, got)
	assert.Equal(t, 2, q.Len())
}

func TestQueueContextCancel(t *testing.T) {
	q := transport.NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueClose(t *testing.T) {
	q := transport.NewQueue[int]()
	q.Put(1)
	q.Close()
	q.Put(2)

	ctx := context.Background()
	got, err := q.Get(ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, got)

	_, err = q.Get(ctx)
	assert.ErrorIs(t, err, transport.ErrQueueClosed)
}

func TestValid(t *testing.T) {
	assert.True(t, transport.Valid(transport.Stream))
	assert.True(t, transport.Valid(transport.Datagram))
	assert.True(t, transport.Valid(transport.Broker))
	assert.False(t, transport.Valid("carrier-pigeon"))
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5000; i++ {
		require.NoError(t, q.Push(i))
	}
	assert.Equal(t, 5000, q.Len())
	for i := 0; i < 5000; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_InterleavedPushPopCompacts(t *testing.T) {
	q := New[int]()
	next := 0
	for round := 0; round < 10; round++ {
		for i := 0; i < 1500; i++ {
			require.NoError(t, q.Push(round*1500 + i))
		}
		for i := 0; i < 1200; i++ {
			v, ok := q.Pop()
			require.True(t, ok)
			require.Equal(t, next, v)
			next++
		}
	}
	assert.Equal(t, 3000, q.Len())
	for _, v := range q.Drain() {
		require.Equal(t, next, v)
		next++
	}
	assert.Equal(t, 15000, next)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := New[string]()
	got := make(chan string, 1)
	go func() {
		v, _ := q.Pop()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Pop returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push("x"))
	select {
	case v := <-got:
		assert.Equal(t, "x", v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestQueue_CloseDrainsThenEnds(t *testing.T) {
	q := New[int]()
	require.NoError(t, q.Push(1))
	require.NoError(t, q.PushAndClose(2))
	assert.ErrorIs(t, q.Push(3), ErrClosed)
	assert.ErrorIs(t, q.PushAndClose(4), ErrClosed)
	assert.False(t, q.Close())
	assert.True(t, q.Closed())

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_CloseWakesBlockedConsumer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := New[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	assert.True(t, q.Close())
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer not released by Close")
	}
}

func TestQueue_PopContextCancel(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok, err := q.PopContext(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_ManyProducersPreservePerProducerOrder(t *testing.T) {
	q := New[[2]int]()
	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Push([2]int{p, i})
			}
		}(p)
	}
	wg.Wait()
	q.Close()

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	count := 0
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		require.Equal(t, last[v[0]]+1, v[1])
		last[v[0]] = v[1]
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}

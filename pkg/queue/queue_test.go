package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsSubmittedWork(t *testing.T) {
	q := New(4)
	q.Start()
	defer q.Stop()

	var n int64
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		q.Submit(Item{Run: func(ctx context.Context) {
			atomic.AddInt64(&n, 1)
			wg.Done()
		}})
	}
	wg.Wait()
	assert.EqualValues(t, 10, atomic.LoadInt64(&n))
}

func TestQueueSerializesByGroup(t *testing.T) {
	q := New(8)
	q.Start()
	defer q.Stop()

	group := uint64(42)
	var running int32
	var maxConcurrent int32
	var wg sync.WaitGroup
	wg.Add(20)
	for i := 0; i < 20; i++ {
		q.Submit(Item{GroupID: &group, Run: func(ctx context.Context) {
			cur := atomic.AddInt32(&running, 1)
			for {
				max := atomic.LoadInt32(&maxConcurrent)
				if cur <= max || atomic.CompareAndSwapInt32(&maxConcurrent, max, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			wg.Done()
		}})
	}
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxConcurrent), "at most one item per group should run at a time")
}

func TestQueueOrdersWithinGroup(t *testing.T) {
	q := New(4)
	q.Start()
	defer q.Stop()

	group := uint64(7)
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		q.Submit(Item{GroupID: &group, Run: func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}})
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueueDropsExpiredItems(t *testing.T) {
	q := New(1)

	var ran bool
	q.Submit(Item{
		Deadline: time.Now().Add(-time.Second),
		Run:      func(ctx context.Context) { ran = true },
	})

	q.Start()
	defer q.Stop()
	q.Quiesce()

	assert.False(t, ran, "an item past its deadline must be discarded, not run")
}

func TestQueueUrgentDrainsBeforeNormal(t *testing.T) {
	q := New(1)

	var mu sync.Mutex
	var order []string
	block := make(chan struct{})

	q.Submit(Item{Run: func(ctx context.Context) {
		<-block // hold the single worker until block is closed
	}})
	q.Submit(Item{Run: func(ctx context.Context) {
		mu.Lock()
		order = append(order, "normal")
		mu.Unlock()
	}})
	q.SubmitUrgent(Item{Run: func(ctx context.Context) {
		mu.Lock()
		order = append(order, "urgent")
		mu.Unlock()
	}})

	q.Start()
	close(block)
	q.Quiesce()
	defer q.Stop()

	require.Len(t, order, 2)
	assert.Equal(t, "urgent", order[0])
}

func TestQueueSubmitUrgentSpawnsOneShotWhenAllWorkersBusy(t *testing.T) {
	q := New(1)
	q.Start()
	defer q.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	q.Submit(Item{Run: func(ctx context.Context) {
		close(started)
		<-block
	}})
	<-started

	done := make(chan struct{})
	q.SubmitUrgent(Item{Run: func(ctx context.Context) { close(done) }})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("urgent item did not run promptly while the sole worker was busy")
	}
	close(block)
}

package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cuemby/rangevault/pkg/log"
	"github.com/rs/zerolog"
)

// Item is one unit of queued work. GroupID, if non-nil, is the
// exclusivity token named in spec §4.8: at most one Item per GroupID
// runs at a time, and items sharing a GroupID run in submission order.
// Deadline, if non-zero, is the point past which the item is discarded
// unread rather than run.
type Item struct {
	GroupID  *uint64
	Deadline time.Time
	Run      func(ctx context.Context)
}

func (it *Item) expired() bool {
	return !it.Deadline.IsZero() && time.Now().After(it.Deadline)
}

// Queue is the shared work pool described above. Zero value is not
// usable; construct with New.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	normal *list.List // of *Item
	urgent *list.List // of *Item

	// groupSem gives each GroupID its own admission token (weight 1),
	// created lazily. A worker that cannot TryAcquire a grouped item's
	// token leaves the item in place and looks further down the queue,
	// which is what keeps a group's own items strictly FIFO while
	// letting unrelated groups' items run concurrently.
	groupSem map[uint64]*semaphore.Weighted

	total int
	busy  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log zerolog.Logger
}

// New constructs a Queue with the given fixed number of persistent
// workers. Call Start to begin draining it.
func New(workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		normal:   list.New(),
		urgent:   list.New(),
		groupSem: make(map[uint64]*semaphore.Weighted),
		total:    workers,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.WithComponent("queue"),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start spawns the fixed worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.total; i++ {
		q.wg.Add(1)
		go q.workerLoop()
	}
}

// Stop terminates every worker loop at its next dequeue point and waits
// for in-flight items to finish.
func (q *Queue) Stop() {
	q.cancel()
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}

// Submit enqueues item on the normal FIFO.
func (q *Queue) Submit(item Item) {
	q.mu.Lock()
	q.normal.PushBack(&item)
	q.cond.Signal()
	q.mu.Unlock()
}

// SubmitUrgent enqueues item on the urgent FIFO, which every worker
// drains strictly before the normal one. If every worker is currently
// busy, a one-shot goroutine is spawned to run it immediately rather
// than waiting for a persistent worker to free up, matching spec §4.8's
// "a one-shot worker may be spawned."
func (q *Queue) SubmitUrgent(item Item) {
	q.mu.Lock()
	if q.busy >= q.total {
		q.mu.Unlock()
		q.wg.Add(1)
		go q.runOneShot(&item)
		return
	}
	q.urgent.PushBack(&item)
	q.cond.Signal()
	q.mu.Unlock()
}

// Quiesce blocks until every worker is idle and both queues are empty.
// Used during shutdown to ensure no in-flight item is abandoned.
func (q *Queue) Quiesce() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.busy > 0 || q.urgent.Len() > 0 || q.normal.Len() > 0 {
		q.cond.Wait()
	}
}

// runOneShot acquires item's group token itself (blocking, since a
// one-shot worker is only spawned when every persistent worker is
// already busy and waiting briefly here is not the bottleneck the
// urgent path exists to avoid), then executes it and releases the
// token, without touching the pool's busy counter.
func (q *Queue) runOneShot(item *Item) {
	defer q.wg.Done()

	var sem *semaphore.Weighted
	if item.GroupID != nil {
		q.mu.Lock()
		sem = q.groupSemLocked(*item.GroupID)
		q.mu.Unlock()
		if sem.Acquire(q.ctx, 1) != nil {
			return
		}
	}

	q.execute(item)

	if sem != nil {
		sem.Release(1)
	}
}

func (q *Queue) workerLoop() {
	defer q.wg.Done()
	for {
		item := q.dequeue()
		if item == nil {
			return // context cancelled, Stop was called
		}
		// dequeue already holds this item's group token (acquired in
		// popEligibleLocked); release it once the item finishes.
		q.execute(item)
		q.mu.Lock()
		if item.GroupID != nil {
			if sem, ok := q.groupSem[*item.GroupID]; ok {
				sem.Release(1)
			}
		}
		q.busy--
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// dequeue blocks until an eligible item is available or the queue's
// context is cancelled, in which case it returns nil. An item is
// eligible if it has no GroupID, or its group's admission token is
// currently free.
func (q *Queue) dequeue() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if item := q.popEligibleLocked(q.urgent); item != nil {
			q.busy++
			return item
		}
		if item := q.popEligibleLocked(q.normal); item != nil {
			q.busy++
			return item
		}
		select {
		case <-q.ctx.Done():
			return nil
		default:
		}
		q.cond.Wait()
	}
}

// popEligibleLocked scans l front-to-back, discarding expired items as
// it goes, and returns the first item whose group token it could
// acquire (or that has no group). Callers must hold q.mu.
func (q *Queue) popEligibleLocked(l *list.List) *Item {
	e := l.Front()
	for e != nil {
		next := e.Next()
		item := e.Value.(*Item)

		if item.expired() {
			l.Remove(e)
			q.cond.Broadcast()
			q.log.Debug().Msg("discarding expired work item")
			e = next
			continue
		}
		if item.GroupID == nil {
			l.Remove(e)
			return item
		}
		sem := q.groupSemLocked(*item.GroupID)
		if sem.TryAcquire(1) {
			l.Remove(e)
			return item
		}
		// Group busy: leave this item in place and keep scanning for an
		// eligible item further back, preserving this group's own FIFO
		// order (its next item is further down the same list).
		e = next
	}
	return nil
}

func (q *Queue) groupSemLocked(group uint64) *semaphore.Weighted {
	sem, ok := q.groupSem[group]
	if !ok {
		sem = semaphore.NewWeighted(1)
		q.groupSem[group] = sem
	}
	return sem
}

// execute runs item.Run, if set. Group-token and busy-counter bookkeeping
// is the caller's responsibility, since the two callers (a persistent
// worker vs. a one-shot urgent spawn) manage it differently.
func (q *Queue) execute(item *Item) {
	if item.Run != nil {
		item.Run(q.ctx)
	}
}

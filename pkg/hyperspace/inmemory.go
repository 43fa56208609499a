package hyperspace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type node struct {
	attrs       map[string][]byte
	lockMode    LockMode
	lockHolder  uint64 // handle ID, 0 if unlocked
	generation  uint64
	subscribers map[chan Event]bool
}

// InMemoryService implements Service entirely in process memory. It is
// the only Service this repository ships; a production deployment would
// front a real lock/metadata service (the original system's own
// Hyperspace, or an equivalent built on a consensus store) behind the
// same interface.
type InMemoryService struct {
	mu      sync.Mutex
	nodes   map[string]*node
	nextID  uint64
	handles map[uint64]*Handle
}

// NewInMemoryService returns an empty InMemoryService.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		nodes:   make(map[string]*node),
		handles: make(map[uint64]*Handle),
	}
}

func (s *InMemoryService) Open(_ context.Context, name string, flags OpenFlags) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[name]
	if !ok {
		if flags&OpenCreate == 0 {
			return nil, fmt.Errorf("hyperspace: %s does not exist", name)
		}
		n = &node{attrs: make(map[string][]byte), subscribers: make(map[chan Event]bool)}
		s.nodes[name] = n
	}

	id := atomic.AddUint64(&s.nextID, 1)
	h := &Handle{ID: id, Name: name, Flags: flags}
	s.handles[id] = h
	return h, nil
}

func (s *InMemoryService) Close(_ context.Context, h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[h.Name]
	if ok && n.lockHolder == h.ID {
		s.releaseLocked(h.Name, n)
	}
	delete(s.handles, h.ID)
	return nil
}

func (s *InMemoryService) TryLock(_ context.Context, h *Handle, mode LockMode) (*Sequencer, bool, error) {
	if h.Flags&OpenLock == 0 {
		return nil, false, fmt.Errorf("hyperspace: handle for %s was not opened with OpenLock", h.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[h.Name]
	if !ok {
		return nil, false, fmt.Errorf("hyperspace: %s does not exist", h.Name)
	}

	if n.lockHolder != 0 && n.lockHolder != h.ID {
		if n.lockMode == LockShared && mode == LockShared {
			// Shared locks are compatible with each other, but this
			// implementation tracks a single holder per node; callers in
			// this repository only ever request exclusive locks
			// (/servers/<location>, /replication/master), so that
			// simplification is never exercised in practice.
			return nil, false, nil
		}
		return nil, false, nil
	}

	n.lockHolder = h.ID
	n.lockMode = mode
	n.generation++
	return &Sequencer{Name: h.Name, Mode: mode, Generation: n.generation}, true, nil
}

func (s *InMemoryService) Unlock(_ context.Context, h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[h.Name]
	if !ok {
		return nil
	}
	if n.lockHolder != h.ID {
		return nil
	}
	s.releaseLocked(h.Name, n)
	return nil
}

// releaseLocked clears the lock on n and notifies subscribers. Caller
// must hold s.mu.
func (s *InMemoryService) releaseLocked(name string, n *node) {
	n.lockHolder = 0
	n.lockMode = LockNone
	event := Event{Name: name, Type: EventLockReleased}
	for ch := range n.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (s *InMemoryService) AttrGet(_ context.Context, name, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[name]
	if !ok {
		return nil, false, fmt.Errorf("hyperspace: %s does not exist", name)
	}
	v, ok := n.attrs[key]
	return v, ok, nil
}

func (s *InMemoryService) AttrSet(_ context.Context, name, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[name]
	if !ok {
		n = &node{attrs: make(map[string][]byte), subscribers: make(map[chan Event]bool)}
		s.nodes[name] = n
	}
	n.attrs[key] = value
	return nil
}

func (s *InMemoryService) Subscribe(name string) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[name]
	if !ok {
		n = &node{attrs: make(map[string][]byte), subscribers: make(map[chan Event]bool)}
		s.nodes[name] = n
	}

	ch := make(chan Event, 10)
	n.subscribers[ch] = true

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if n, ok := s.nodes[name]; ok {
			delete(n.subscribers, ch)
		}
		close(ch)
	}
	return ch, unsubscribe
}

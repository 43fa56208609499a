package hyperspace

import (
	"context"
	"testing"
	"time"
)

func TestTryLockExclusiveExcludesOtherHolder(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()

	h1, err := svc.Open(ctx, "/servers/rs1", OpenLock|OpenCreate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	h2, err := svc.Open(ctx, "/servers/rs1", OpenLock|OpenCreate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	seq, acquired, err := svc.TryLock(ctx, h1, LockExclusive)
	if err != nil || !acquired {
		t.Fatalf("first TryLock() = (%v, %v, %v), want acquired", seq, acquired, err)
	}

	_, acquired, err = svc.TryLock(ctx, h2, LockExclusive)
	if err != nil {
		t.Fatalf("second TryLock() error = %v", err)
	}
	if acquired {
		t.Fatal("second TryLock() acquired a lock already held exclusively")
	}
}

func TestUnlockNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()

	h1, _ := svc.Open(ctx, "/servers/rs1", OpenLock|OpenCreate)
	if _, acquired, err := svc.TryLock(ctx, h1, LockExclusive); err != nil || !acquired {
		t.Fatalf("TryLock() failed to acquire: acquired=%v err=%v", acquired, err)
	}

	events, unsubscribe := svc.Subscribe("/servers/rs1")
	defer unsubscribe()

	if err := svc.Unlock(ctx, h1); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != EventLockReleased {
			t.Errorf("event type = %v, want %v", ev.Type, EventLockReleased)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lock_released event")
	}
}

func TestCloseWithoutUnlockReleasesLock(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()

	h1, _ := svc.Open(ctx, "/servers/rs1", OpenLock|OpenCreate)
	if _, acquired, _ := svc.TryLock(ctx, h1, LockExclusive); !acquired {
		t.Fatal("failed to acquire initial lock")
	}

	// Simulate a crashed holder: Close without Unlock.
	if err := svc.Close(ctx, h1); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	h2, _ := svc.Open(ctx, "/servers/rs1", OpenLock|OpenCreate)
	_, acquired, err := svc.TryLock(ctx, h2, LockExclusive)
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if !acquired {
		t.Fatal("lock was not released when holder's handle closed")
	}
}

func TestAttrSetGet(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()

	if err := svc.AttrSet(ctx, "/servers/rs1", "Location", []byte("rs-a1b2")); err != nil {
		t.Fatalf("AttrSet() error = %v", err)
	}

	v, ok, err := svc.AttrGet(ctx, "/servers/rs1", "Location")
	if err != nil {
		t.Fatalf("AttrGet() error = %v", err)
	}
	if !ok || string(v) != "rs-a1b2" {
		t.Fatalf("AttrGet() = (%q, %v), want (\"rs-a1b2\", true)", v, ok)
	}

	_, ok, err = svc.AttrGet(ctx, "/servers/rs1", "missing")
	if err != nil {
		t.Fatalf("AttrGet() error = %v", err)
	}
	if ok {
		t.Fatal("AttrGet() reported a never-set key as present")
	}
}

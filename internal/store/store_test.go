// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package store

import (
	"testing"
	"time"

	"github.com/tomtom215/relayer/internal/relay"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func testEvent(id string) *relay.Event {
	return &relay.Event{
		ID:        id,
		PubKey:    "abc123",
		Kind:      30931,
		CreatedAt: time.Now().Unix(),
		Content:   "hi",
	}
}

func TestStoreEventRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	e := testEvent("01" + "00000000000000000000000000000000000000000000000000000000000f")

	if ok, err := s.Exists(e.ID); err != nil || ok {
		t.Fatalf("Exists before store = %v, %v; want false, nil", ok, err)
	}

	if err := s.StoreEvent(e); err != nil {
		t.Fatalf("StoreEvent: %v", err)
	}

	ok, err := s.Exists(e.ID)
	if err != nil || !ok {
		t.Fatalf("Exists after store = %v, %v; want true, nil", ok, err)
	}

	got, err := s.GetEvent(e.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.ID != e.ID || got.Content != e.Content || got.Kind != e.Kind {
		t.Errorf("GetEvent = %+v; want equivalent of %+v", got, e)
	}
}

func TestGetEventNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.GetEvent("deadbeef")
	if err != ErrNotFound {
		t.Errorf("GetEvent missing id error = %v; want ErrNotFound", err)
	}
}

func TestMarkForwardSuccess(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	id := "aa11"
	if ok, _ := s.IsForwardSuccess(id); ok {
		t.Fatalf("IsForwardSuccess before mark = true; want false")
	}

	if err := s.MarkForwardSuccess(id); err != nil {
		t.Fatalf("MarkForwardSuccess: %v", err)
	}

	ok, err := s.IsForwardSuccess(id)
	if err != nil || !ok {
		t.Fatalf("IsForwardSuccess after mark = %v, %v; want true, nil", ok, err)
	}
}

func TestLoadRecentSuccessIDsOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	ids := []string{"e1", "e2", "e3"}
	for _, id := range ids {
		if err := s.MarkForwardSuccess(id); err != nil {
			t.Fatalf("MarkForwardSuccess(%s): %v", id, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	got, err := s.LoadRecentSuccessIDs(10)
	if err != nil {
		t.Fatalf("LoadRecentSuccessIDs: %v", err)
	}
	if len(got) != len(ids) {
		t.Fatalf("LoadRecentSuccessIDs len = %d; want %d", len(got), len(ids))
	}

	want := []string{"e3", "e2", "e1"}
	for i, id := range want {
		if got[i] != id {
			t.Errorf("LoadRecentSuccessIDs[%d] = %s; want %s", i, got[i], id)
		}
	}
}

func TestLoadRecentSuccessIDsRespectsLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := s.MarkForwardSuccess(id); err != nil {
			t.Fatalf("MarkForwardSuccess(%s): %v", id, err)
		}
	}

	got, err := s.LoadRecentSuccessIDs(2)
	if err != nil {
		t.Fatalf("LoadRecentSuccessIDs: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("LoadRecentSuccessIDs len = %d; want 2", len(got))
	}
}

func TestDeleteEventOnlyTouchesEventFamily(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	e := testEvent("ff00")
	if err := s.StoreEvent(e); err != nil {
		t.Fatalf("StoreEvent: %v", err)
	}
	if err := s.MarkForwardSuccess(e.ID); err != nil {
		t.Fatalf("MarkForwardSuccess: %v", err)
	}

	if err := s.DeleteEvent(e.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}

	if ok, _ := s.Exists(e.ID); ok {
		t.Errorf("Exists after delete = true; want false")
	}
	if ok, err := s.IsForwardSuccess(e.ID); err != nil || !ok {
		t.Errorf("IsForwardSuccess after DeleteEvent(evt: only) = %v, %v; want true, nil", ok, err)
	}
}

func TestApproximateCount(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.StoreEvent(testEvent("11")); err != nil {
		t.Fatalf("StoreEvent: %v", err)
	}
	if err := s.MarkForwardSuccess("11"); err != nil {
		t.Fatalf("MarkForwardSuccess: %v", err)
	}

	count, err := s.ApproximateCount()
	if err != nil {
		t.Fatalf("ApproximateCount: %v", err)
	}
	// evt:11, fwd:11, succ:<ts>:11
	if count != 3 {
		t.Errorf("ApproximateCount = %d; want 3", count)
	}
}

package session

import (
	"testing"
)

func TestRegistryDuplicateID(t *testing.T) {
	reg := NewRegistry(nil, nil)

	s1 := newTestSession(t, "stream-1", nil, &stubEngine{}, &memorySink{})
	if err := reg.Register(s1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	s2 := newTestSession(t, "stream-1", nil, &stubEngine{}, &memorySink{})
	if err := reg.Register(s2); err == nil {
		t.Error("Expected error for duplicate session id")
	}

	// The id becomes available again after unregistering
	if !reg.Unregister("stream-1") {
		t.Fatal("Unregister failed")
	}

	if err := reg.Register(s2); err != nil {
		t.Errorf("Register after unregister failed: %v", err)
	}
}

func TestRegistryGetAndList(t *testing.T) {
	reg := NewRegistry(nil, nil)

	for _, id := range []string{"stream-b", "stream-a"} {
		s := newTestSession(t, id, nil, &stubEngine{}, &memorySink{})
		if err := reg.Register(s); err != nil {
			t.Fatalf("Register %s failed: %v", id, err)
		}
	}

	if _, ok := reg.Get("stream-a"); !ok {
		t.Error("Expected to find stream-a")
	}

	if _, ok := reg.Get("missing"); ok {
		t.Error("Did not expect to find missing session")
	}

	infos := reg.List()
	if len(infos) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(infos))
	}

	if infos[0].ID != "stream-a" || infos[1].ID != "stream-b" {
		t.Errorf("Expected sorted ids, got %v, %v", infos[0].ID, infos[1].ID)
	}
}

func TestRegistryStop(t *testing.T) {
	reg := NewRegistry(nil, nil)

	s := newTestSession(t, "stream-1", nil, &stubEngine{}, &memorySink{})
	if err := reg.Register(s); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !reg.Stop("stream-1") {
		t.Error("Stop should return true for a registered session")
	}

	if s.State() != StateStopped {
		t.Errorf("Expected Stopped state, got %v", s.State())
	}

	if reg.Stop("stream-1") {
		t.Error("Stop should return false for an unregistered session")
	}

	if reg.Len() != 0 {
		t.Errorf("Expected empty registry, got %d sessions", reg.Len())
	}
}

func TestRegistryStopAll(t *testing.T) {
	reg := NewRegistry(nil, nil)

	for _, id := range []string{"stream-1", "stream-2", "stream-3"} {
		s := newTestSession(t, id, nil, &stubEngine{}, &memorySink{})
		if err := reg.Register(s); err != nil {
			t.Fatalf("Register %s failed: %v", id, err)
		}
		if err := s.Start(); err != nil {
			t.Fatalf("Start %s failed: %v", id, err)
		}
	}

	if stopped := reg.StopAll(); stopped != 3 {
		t.Errorf("Expected 3 stopped sessions, got %d", stopped)
	}

	if reg.Len() != 0 {
		t.Errorf("Expected empty registry after StopAll, got %d", reg.Len())
	}
}

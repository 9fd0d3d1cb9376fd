package utils

import "testing"

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		if id == "" {
			t.Fatal("empty id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestLocalMessageIDs(t *testing.T) {
	id := NewLocalMessageID()
	if !IsLocalMessageID(id) {
		t.Fatalf("local id not recognized: %q", id)
	}
	if IsLocalMessageID(NewID()) {
		t.Fatal("plain id classified as local")
	}
	if IsLocalMessageID("") {
		t.Fatal("empty id classified as local")
	}
}

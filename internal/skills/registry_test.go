package skills

import (
	"testing"
)

func TestNewRegistry_LoadsEmbeddedCatalog(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	list := r.List()
	if len(list) == 0 {
		t.Fatal("embedded catalog is empty")
	}

	for _, s := range list {
		if s.ID == "" || s.Title == "" || s.Content == "" {
			t.Errorf("incomplete skill: %+v", s)
		}
	}
}

func TestRegistry_Get(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	first := r.List()[0]
	got, ok := r.Get(first.ID)
	if !ok || got.ID != first.ID {
		t.Errorf("Get(%q) = %+v, %v", first.ID, got, ok)
	}

	if _, ok := r.Get("no-such-skill"); ok {
		t.Error("Get of unknown id should report false")
	}
}

func TestRegistry_Excluding(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	all := r.List()
	used := []string{all[0].ID}

	remaining := r.Excluding(used)
	if len(remaining) != len(all)-1 {
		t.Fatalf("Excluding left %d skills, want %d", len(remaining), len(all)-1)
	}
	for _, s := range remaining {
		if s.ID == used[0] {
			t.Errorf("used skill %q not excluded", used[0])
		}
	}

	if got := r.Excluding(nil); len(got) != len(all) {
		t.Errorf("Excluding(nil) left %d skills, want %d", len(got), len(all))
	}
}

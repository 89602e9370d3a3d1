package cache

import (
	"fmt"
	"net/http"
	"sort"
	"testing"
)

func TestMemoryStoreOpenIdempotent(t *testing.T) {
	s := NewMemoryStore(10)

	p1, err := s.Open("static-v1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p1.Set("k", &Entry{StatusCode: 200, Body: []byte("a")}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	p2, err := s.Open("static-v1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := p2.Get("k"); !ok {
		t.Fatal("expected entry to survive reopen")
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore(10)
	p, _ := s.Open("api-v1")

	p.Set("k", &Entry{StatusCode: 200, Body: []byte("old")})
	p.Set("k", &Entry{StatusCode: 200, Body: []byte("new")})

	got, ok := p.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got.Body) != "new" {
		t.Errorf("expected overwrite, got body %q", got.Body)
	}
	if p.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", p.Len())
	}
}

func TestMemoryStoreListDelete(t *testing.T) {
	s := NewMemoryStore(10)
	s.Open("static-v1")
	s.Open("dynamic-v1")
	s.Open("api-v1")

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(names)
	want := []string{"api-v1", "dynamic-v1", "static-v1"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("List() = %v, want %v", names, want)
	}

	if err := s.Delete("dynamic-v1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	names, _ = s.List()
	if len(names) != 2 {
		t.Errorf("expected 2 partitions after delete, got %v", names)
	}

	// Deleting a missing partition is a no-op
	if err := s.Delete("nope"); err != nil {
		t.Errorf("Delete of missing partition returned error: %v", err)
	}
}

func TestMemoryStoreLRUBound(t *testing.T) {
	s := NewMemoryStore(3)
	p, _ := s.Open("dynamic-v1")

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		p.Set(key, &Entry{StatusCode: 200, Headers: http.Header{}, Body: []byte(key)})
	}

	if p.Len() != 3 {
		t.Errorf("expected LRU bound of 3, got %d entries", p.Len())
	}
	if _, ok := p.Get("k4"); !ok {
		t.Error("expected most recent entry to survive eviction")
	}
}

package syncx

import "testing"

func TestMapBasicOperations(t *testing.T) {
	var m Map[string, int]

	m.Store("a", 1)
	if v, ok := m.Load("a"); !ok || v != 1 {
		t.Fatalf("Load(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := m.Load("missing"); ok {
		t.Fatal("Load(missing) = ok; want not found")
	}

	if actual, loaded := m.LoadOrStore("a", 2); !loaded || actual != 1 {
		t.Fatalf("LoadOrStore(a) = %d, %v; want 1, true", actual, loaded)
	}
	if actual, loaded := m.LoadOrStore("b", 2); loaded || actual != 2 {
		t.Fatalf("LoadOrStore(b) = %d, %v; want 2, false", actual, loaded)
	}

	if m.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", m.Len())
	}

	m.Delete("a")
	if _, ok := m.Load("a"); ok {
		t.Fatal("Load(a) after Delete = ok; want not found")
	}

	seen := map[string]int{}
	m.Range(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	if len(seen) != 1 || seen["b"] != 2 {
		t.Fatalf("Range produced %v; want map[b:2]", seen)
	}
}

package cache

import (
	"errors"
	"testing"
)

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](0)
	c.Set("a", 1)
	c.Set("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Get(a) after overwrite = %d", v)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) found an entry")
	}
	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Len != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, string](2)
	var evicted []int
	c.OnEvict(func(k int, _ string) { evicted = append(evicted, k) })

	c.Set(1, "one")
	c.Set(2, "two")
	c.Get(1) // 2 is now the oldest
	c.Set(3, "three")

	if len(evicted) != 1 || evicted[0] != 2 {
		t.Fatalf("evicted = %v, want [2]", evicted)
	}
	if _, ok := c.Get(2); ok {
		t.Error("evicted entry still present")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[string, int](4)
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}
	for range 3 {
		v, err := c.GetOrCreate("k", create)
		if err != nil || v != 42 {
			t.Fatalf("GetOrCreate() = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate("bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed creation was cached")
	}
}

func TestCacheClearCallsEvict(t *testing.T) {
	c := New[int, int](0)
	n := 0
	c.OnEvict(func(int, int) { n++ })
	for i := range 5 {
		c.Set(i, i)
	}
	if !c.Delete(0) {
		t.Error("Delete(0) = false")
	}
	c.Clear()
	if n != 4 {
		t.Errorf("evict callback called %d times, want 4", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear", c.Len())
	}
}

func TestLRUListOrder(t *testing.T) {
	var l lruList[string, int]
	a := l.PushFront("a", 1)
	l.PushFront("b", 2)
	l.PushFront("c", 3)
	if got := l.Oldest().key; got != "a" {
		t.Errorf("Oldest() = %q, want a", got)
	}
	l.MoveToFront(a)
	if got := l.Oldest().key; got != "b" {
		t.Errorf("Oldest() after MoveToFront = %q, want b", got)
	}
	l.Remove(l.Oldest())
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

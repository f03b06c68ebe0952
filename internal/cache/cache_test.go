package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestSetGetDelete(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d,%v want 1,true", v, ok)
	}
	if !c.Delete("a") {
		t.Fatal("Delete(a) should report presence")
	}
	if c.Delete("a") {
		t.Fatal("second Delete(a) must be a no-op")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted key must not resolve")
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestSetReturnsEvictedEntry(t *testing.T) {
	c := New[int, string](2)
	c.Set(1, "one")
	c.Set(2, "two")

	if _, _, evicted := c.Set(3, "three"); !evicted {
		t.Fatal("third insert into a 2-entry cache must evict")
	}
}

func TestEvictionOrderIsLRUNotInsertion(t *testing.T) {
	c := New[int, string](2)
	c.Set(1, "one")
	c.Set(2, "two")
	c.Get(1) // refresh 1 so 2 becomes the eviction candidate

	k, v, evicted := c.Set(3, "three")
	if !evicted || k != 2 || v != "two" {
		t.Fatalf("evicted = (%v,%v,%v), want (2,two,true)", k, v, evicted)
	}
	if _, ok := c.Get(1); !ok {
		t.Fatal("refreshed entry 1 must survive")
	}
}

func TestUpdateExistingKeyDoesNotEvict(t *testing.T) {
	c := New[int, string](2)
	c.Set(1, "one")
	c.Set(2, "two")

	if _, _, evicted := c.Set(1, "uno"); evicted {
		t.Fatal("overwriting an existing key must not evict")
	}
	if v, _ := c.Get(1); v != "uno" {
		t.Fatalf("Get(1) = %q, want uno", v)
	}
}

func TestUnboundedCacheNeverEvicts(t *testing.T) {
	c := New[int, int](0)
	for i := 0; i < 1000; i++ {
		if _, _, evicted := c.Set(i, i); evicted {
			t.Fatalf("unbounded cache evicted at insert %d", i)
		}
	}
	if c.Len() != 1000 {
		t.Fatalf("Len = %d, want 1000", c.Len())
	}
}

func TestShardedConcurrentAccess(t *testing.T) {
	s := NewSharded[string, int](64, StringHasher)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d-%d", w, i)
				s.Set(key, i)
				if v, ok := s.Get(key); !ok || v != i {
					t.Errorf("Get(%s) = %d,%v want %d,true", key, v, ok, i)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}

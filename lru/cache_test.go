package lru

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestBasicGetPut(t *testing.T) {
	c := New[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("expected b=2, got %v %v", v, ok)
	}
}

func TestEviction(t *testing.T) {
	c := New[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // "b" becomes LRU

	evKey, evVal, evicted := c.Put("c", 3)
	if !evicted || evKey != "b" || evVal != 2 {
		t.Fatalf("expected eviction of b=2, got key=%v val=%v evicted=%v", evKey, evVal, evicted)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
}

func TestUpdateDoesNotEvict(t *testing.T) {
	c := New[string, int](1)
	c.Put("a", 1)
	if _, _, evicted := c.Put("a", 2); evicted {
		t.Fatal("update should not evict")
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("expected a=2, got %v", v)
	}
}

func TestDelete(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	if !c.Delete("a") {
		t.Fatal("expected delete to report presence")
	}
	if c.Delete("a") {
		t.Fatal("second delete should report absence")
	}
}

func TestRemoveFunc(t *testing.T) {
	c := New[string, int](10)
	for _, k := range []string{"acme/widgets/1", "acme/widgets/2", "acme/gears/1", "other/x/1"} {
		c.Put(k, 0)
	}
	n := c.RemoveFunc(func(k string) bool { return strings.HasPrefix(k, "acme/widgets/") })
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, ok := c.Get("acme/gears/1"); !ok {
		t.Fatal("unrelated entry should survive")
	}
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
}

func TestPurge(t *testing.T) {
	c := New[int, int](3)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
	c.Put(3, 3)
	if v, ok := c.Get(3); !ok || v != 3 {
		t.Fatal("cache should be usable after purge")
	}
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New[string, int](0)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int](50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("%d-%d", g, i%60)
				c.Put(k, i)
				c.Get(k)
				if i%17 == 0 {
					c.Delete(k)
				}
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 50 {
		t.Fatalf("capacity exceeded: %d", c.Len())
	}
}

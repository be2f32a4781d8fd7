package memory

import (
	"sync"
	"testing"
)

func TestMemory(t *testing.T) {
	t.Run("drops the oldest past capacity", func(t *testing.T) {
		m := NewMemory[int](3)
		for i := 1; i <= 5; i++ {
			m.Store(i)
		}
		got := m.All()
		want := []int{3, 4, 5}
		if len(got) != len(want) {
			t.Fatalf("All() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("All()[%d] = %d, want %d", i, got[i], want[i])
			}
		}
	})

	t.Run("last n", func(t *testing.T) {
		m := NewMemory[string](10)
		m.Store("a")
		m.Store("b")
		m.Store("c")
		if got := m.Last(2); len(got) != 2 || got[0] != "b" || got[1] != "c" {
			t.Errorf("Last(2) = %v, want [b c]", got)
		}
		if got := m.Last(10); len(got) != 3 {
			t.Errorf("Last(10) returned %d entries, want 3", len(got))
		}
		if got := m.Last(0); got != nil {
			t.Errorf("Last(0) = %v, want nil", got)
		}
	})

	t.Run("copies are detached", func(t *testing.T) {
		m := NewMemory[int](2)
		m.Store(1)
		all := m.All()
		all[0] = 99
		if m.All()[0] != 1 {
			t.Error("mutating the copy changed the memory")
		}
	})

	t.Run("clear and minimum capacity", func(t *testing.T) {
		m := NewMemory[int](0)
		if m.Capacity() != 1 {
			t.Errorf("Capacity() = %d, want 1", m.Capacity())
		}
		m.Store(1)
		m.Store(2)
		if m.Len() != 1 {
			t.Errorf("Len() = %d, want 1", m.Len())
		}
		m.Clear()
		if m.Len() != 0 {
			t.Errorf("Len() after Clear = %d, want 0", m.Len())
		}
	})

	t.Run("concurrent stores", func(t *testing.T) {
		m := NewMemory[int](1000)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					m.Store(i*50 + j)
				}
			}(i)
		}
		wg.Wait()
		if m.Len() != 500 {
			t.Errorf("Len() = %d, want 500", m.Len())
		}
	})
}

package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestGenerators(t *testing.T) {
	tests := []struct {
		name  string
		gen   Generator
		valid func(string) bool
	}{
		{"nanoid", NanoID(16), func(id string) bool {
			return len(id) == 16 && strings.Trim(id, "0123456789abcdefghijklmnopqrstuvwxyz") == ""
		}},
		{"uuidv7", UUIDv7(), func(id string) bool {
			u, err := uuid.Parse(id)
			return err == nil && u.Version() == 7
		}},
		{"prefixed", Prefixed("mcp_", NanoID(8)), func(id string) bool {
			return len(id) == 12 && strings.HasPrefix(id, "mcp_")
		}},
	}
	for _, tt := range tests {
		seen := make(map[string]bool, 500)
		for i := 0; i < 500; i++ {
			id := tt.gen()
			if !tt.valid(id) {
				t.Fatalf("%s: malformed id %q", tt.name, id)
			}
			if seen[id] {
				t.Fatalf("%s: duplicate %q after %d ids", tt.name, id, i)
			}
			seen[id] = true
		}
	}
}

func TestUUIDv7_SortsByTime(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 50; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("%q not after %q", id, prev)
		}
		prev = id
	}
}

func TestSequential(t *testing.T) {
	gen := Sequential("v-")
	for _, want := range []string{"v-1", "v-2", "v-3"} {
		if got := gen(); got != want {
			t.Fatalf("Sequential: got %q, want %q", got, want)
		}
	}
	if other := Sequential("v-")(); other != "v-1" {
		t.Fatalf("Sequential: generators share state, got %q", other)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	gen := Sequential("")
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen()
				mu.Lock()
				if seen[id] {
					t.Errorf("Sequential: duplicate %q", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 800 {
		t.Fatalf("Sequential: got %d ids, want 800", len(seen))
	}
}

package merge

import (
	"sync"
	"testing"
	"time"
)

func newTestDetector(window time.Duration) (*Detector, *time.Time) {
	d := NewDetector(window)
	current := time.Unix(1700000000, 0)
	d.now = func() time.Time { return current }
	return d, &current
}

func TestCorrelate_DeleteThenCreateWithinWindow(t *testing.T) {
	d, now := newTestDetector(30 * time.Second)

	fields := map[string]any{"name": "Ada Lovelace", "email": "ada@example.com", "phone": "555"}
	d.TrackDelete("persons", "7", fields)

	*now = now.Add(5 * time.Second)
	mergedID, ok := d.Correlate("persons", "9", map[string]any{
		"name": "Ada Lovelace", "email": "ada@example.com", "phone": "555",
	})
	if !ok || mergedID != "7" {
		t.Fatalf("Expected merge inference 7, got %q ok=%v", mergedID, ok)
	}

	// The inference is queryable by the deleted id.
	if surviving, ok := d.InferMerge("persons", "7"); !ok || surviving != "9" {
		t.Errorf("Expected InferMerge to report survivor 9, got %q ok=%v", surviving, ok)
	}
}

func TestCorrelate_OutsideWindowIsNotAMerge(t *testing.T) {
	d, now := newTestDetector(30 * time.Second)

	fields := map[string]any{"name": "Ada", "email": "ada@example.com"}
	d.TrackDelete("persons", "7", fields)

	*now = now.Add(31 * time.Second)
	if _, ok := d.Correlate("persons", "9", fields); ok {
		t.Error("Expected no inference outside the window")
	}
}

func TestCorrelate_DifferentTypeDoesNotMatch(t *testing.T) {
	d, _ := newTestDetector(30 * time.Second)

	fields := map[string]any{"name": "Ada", "email": "ada@example.com"}
	d.TrackDelete("persons", "7", fields)

	if _, ok := d.Correlate("deals", "9", fields); ok {
		t.Error("Expected no cross-type inference")
	}
}

func TestCorrelate_InsufficientOverlap(t *testing.T) {
	d, _ := newTestDetector(30 * time.Second)

	d.TrackDelete("persons", "7", map[string]any{
		"name": "Ada", "email": "ada@example.com", "phone": "555", "org": "acme",
	})

	// Only one field matches: below the minimum and below half.
	if _, ok := d.Correlate("persons", "9", map[string]any{"name": "Ada", "email": "other@example.com"}); ok {
		t.Error("Expected one matching field to be insufficient")
	}
}

func TestCorrelate_SameIDIsNotAMerge(t *testing.T) {
	d, _ := newTestDetector(30 * time.Second)

	fields := map[string]any{"name": "Ada", "email": "ada@example.com"}
	d.TrackDelete("persons", "7", fields)

	// A delete followed by a re-create of the same id is an undo, not a merge.
	if _, ok := d.Correlate("persons", "7", fields); ok {
		t.Error("Expected same-id create not to infer a merge")
	}
}

func TestCorrelate_EntryConsumedAfterMatch(t *testing.T) {
	d, _ := newTestDetector(30 * time.Second)

	fields := map[string]any{"name": "Ada", "email": "ada@example.com"}
	d.TrackDelete("persons", "7", fields)

	if _, ok := d.Correlate("persons", "9", fields); !ok {
		t.Fatal("Expected first correlation to match")
	}
	if _, ok := d.Correlate("persons", "10", fields); ok {
		t.Error("Expected tracked delete to be consumed by the first match")
	}
}

func TestInferMerge_ExpiresWithWindow(t *testing.T) {
	d, now := newTestDetector(30 * time.Second)

	fields := map[string]any{"name": "Ada", "email": "ada@example.com"}
	d.TrackDelete("persons", "7", fields)
	if _, ok := d.Correlate("persons", "9", fields); !ok {
		t.Fatal("Expected correlation")
	}

	*now = now.Add(31 * time.Second)
	if _, ok := d.InferMerge("persons", "7"); ok {
		t.Error("Expected inference to expire after the window")
	}
}

func TestTrackDelete_PurgesExpiredEntries(t *testing.T) {
	d, now := newTestDetector(30 * time.Second)

	d.TrackDelete("persons", "1", map[string]any{"name": "a", "email": "a@x"})
	*now = now.Add(40 * time.Second)
	d.TrackDelete("persons", "2", map[string]any{"name": "b", "email": "b@x"})

	d.mu.Lock()
	entries := len(d.deletes["persons"])
	d.mu.Unlock()
	if entries != 1 {
		t.Errorf("Expected expired entry purged, got %d entries", entries)
	}
}

func TestDetector_ConcurrentAccess(t *testing.T) {
	d := NewDetector(30 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.TrackDelete("deals", "1", map[string]any{"title": "x", "value": "5"})
		}()
		go func() {
			defer wg.Done()
			d.Correlate("deals", "2", map[string]any{"title": "x", "value": "5"})
		}()
	}
	wg.Wait()
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name     string
		deleted  map[string]any
		current  map[string]any
		expected bool
	}{
		{
			"Full match",
			map[string]any{"name": "Ada", "email": "a@x"},
			map[string]any{"name": "Ada", "email": "a@x"},
			true,
		},
		{
			"Half match above minimum",
			map[string]any{"name": "Ada", "email": "a@x", "phone": "1", "org": "acme"},
			map[string]any{"name": "Ada", "email": "a@x"},
			true,
		},
		{
			"Below half",
			map[string]any{"name": "Ada", "email": "a@x", "phone": "1", "org": "acme", "role": "cto"},
			map[string]any{"name": "Ada", "email": "a@x"},
			false,
		},
		{
			"Id field ignored",
			map[string]any{"id": "7", "name": "Ada", "email": "a@x"},
			map[string]any{"id": "9", "name": "Ada", "email": "a@x"},
			true,
		},
		{"Empty deleted data", map[string]any{}, map[string]any{"name": "Ada"}, false},
		{"Empty current data", map[string]any{"name": "Ada"}, map[string]any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overlaps(tt.deleted, tt.current); got != tt.expected {
				t.Errorf("overlaps() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

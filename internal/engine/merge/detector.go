package merge

import (
	"reflect"
	"sync"
	"time"
)

// trackedDelete is one recently deleted entity waiting to be correlated with
// a follow-up create or update.
type trackedDelete struct {
	entityID  string
	fields    map[string]any
	deletedAt time.Time
}

type inference struct {
	survivingID string
	inferredAt  time.Time
}

// Detector correlates a delete followed shortly by a create/update of a
// similar record into a merge inference. It is strictly a fallback: explicit
// merge events from the platform never reach it. Safe for concurrent use; one
// writer per incoming event, readers check overlap.
type Detector struct {
	mu         sync.Mutex
	window     time.Duration
	deletes    map[string][]trackedDelete // keyed by entity type
	inferences map[string]inference       // keyed by entityType + "/" + mergedID
	now        func() time.Time
}

// Minimum matching fields before overlap counts as significant. Two records
// that only share a name are not a merge.
const minOverlapFields = 2

func NewDetector(window time.Duration) *Detector {
	return &Detector{
		window:     window,
		deletes:    make(map[string][]trackedDelete),
		inferences: make(map[string]inference),
		now:        time.Now,
	}
}

// TrackDelete records a delete with the entity's last known field values.
// Entries expire after the detection window.
func (d *Detector) TrackDelete(entityType, entityID string, lastKnown map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.purgeLocked(entityType)
	d.deletes[entityType] = append(d.deletes[entityType], trackedDelete{
		entityID:  entityID,
		fields:    lastKnown,
		deletedAt: d.now(),
	})
}

// Correlate checks a create/update against tracked deletes of the same type.
// On a match it records the inference, drops the tracked entry so the same
// delete is never matched twice, and returns the merged (deleted) id.
func (d *Detector) Correlate(entityType, newID string, data map[string]any) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.purgeLocked(entityType)

	entries := d.deletes[entityType]
	for i, entry := range entries {
		if entry.entityID == newID {
			continue
		}
		if !overlaps(entry.fields, data) {
			continue
		}

		d.deletes[entityType] = append(entries[:i], entries[i+1:]...)
		d.inferences[entityType+"/"+entry.entityID] = inference{
			survivingID: newID,
			inferredAt:  d.now(),
		}
		return entry.entityID, true
	}
	return "", false
}

// InferMerge reports the surviving id for an entity previously flagged as
// merged away, if the inference is still inside the window.
func (d *Detector) InferMerge(entityType, entityID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := entityType + "/" + entityID
	inf, ok := d.inferences[key]
	if !ok {
		return "", false
	}
	if d.now().Sub(inf.inferredAt) > d.window {
		delete(d.inferences, key)
		return "", false
	}
	return inf.survivingID, true
}

// purgeLocked lazily drops expired entries for one entity type. Caller holds
// the mutex.
func (d *Detector) purgeLocked(entityType string) {
	cutoff := d.now().Add(-d.window)

	entries := d.deletes[entityType]
	kept := entries[:0]
	for _, entry := range entries {
		if entry.deletedAt.After(cutoff) {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(d.deletes, entityType)
	} else {
		d.deletes[entityType] = kept
	}

	for key, inf := range d.inferences {
		if !inf.inferredAt.After(cutoff) {
			delete(d.inferences, key)
		}
	}
}

// overlaps reports whether the new record's data matches the deleted record
// closely enough to call it the same underlying entity: at least half of the
// deleted record's non-empty fields, and no fewer than minOverlapFields, must
// carry equal values.
func overlaps(deleted, current map[string]any) bool {
	if len(deleted) == 0 || len(current) == 0 {
		return false
	}

	comparable := 0
	matching := 0
	for key, oldVal := range deleted {
		if key == "id" || oldVal == nil || oldVal == "" {
			continue
		}
		comparable++
		if newVal, ok := current[key]; ok && reflect.DeepEqual(oldVal, newVal) {
			matching++
		}
	}

	if matching < minOverlapFields {
		return false
	}
	return matching*2 >= comparable
}

package webhook

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	NotificationCreated = "created"
	NotificationUpdated = "updated"
	NotificationDeleted = "deleted"
	NotificationMerged  = "merged"
)

// FieldChange records one changed field in an update diff.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Notification is an explicit event object handed to registered subscribers
// after persistence has succeeded. Consumers never see an event for a change
// that was not stored.
type Notification struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	ObjectType string                 `json:"object_type"`
	ObjectID   string                 `json:"object_id"`
	Source     string                 `json:"source"`
	Diff       map[string]FieldChange `json:"diff,omitempty"`
	LastKnown  map[string]any         `json:"last_known,omitempty"`
	// Merge-only fields. Inferred is set when the merge came from the
	// delete/create heuristic rather than an explicit merge event.
	SurvivingID       string `json:"surviving_id,omitempty"`
	MigratedRelations int64  `json:"migrated_relations,omitempty"`
	Inferred          bool   `json:"inferred,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

type Subscriber func(Notification)

// Notifier fans a notification out to every registered subscriber, in
// registration order, on the caller's goroutine.
type Notifier struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Subscribe(fn Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *Notifier) Publish(ntf Notification) {
	ntf.ID = "ntf_" + uuid.New().String()
	ntf.Timestamp = time.Now().Unix()

	n.mu.RLock()
	subs := make([]Subscriber, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	for _, fn := range subs {
		fn(ntf)
	}
}

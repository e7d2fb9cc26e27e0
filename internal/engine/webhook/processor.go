package webhook

import (
	"context"
	"reflect"

	"github.com/rs/zerolog/log"

	"pipesync/internal/platform/models"
	pkgerrors "pipesync/internal/pkg/errors"
)

// Store is the entity-persistence collaborator. Upsert and MarkDeleted must
// be idempotent; the platform re-delivers events on non-2xx responses.
type Store interface {
	Upsert(objectType, externalID string, data map[string]any) (*models.Entity, error)
	GetByExternalID(objectType, externalID string) (*models.Entity, error)
	MarkDeleted(objectType, externalID string) error
	MigrateRelations(objectType, mergedID, survivingID string) (int64, error)
}

// MergeDetector is the delete/create correlation heuristic. Explicit merge
// events bypass it entirely.
type MergeDetector interface {
	TrackDelete(entityType, entityID string, lastKnown map[string]any)
	Correlate(entityType, newID string, data map[string]any) (mergedID string, ok bool)
}

type Result struct {
	Processed bool   `json:"processed"`
	Action    string `json:"action"`
}

type Processor struct {
	store    Store
	notifier *Notifier
	detector MergeDetector // nil when merge detection is disabled
}

func NewProcessor(store Store, notifier *Notifier, detector MergeDetector) *Processor {
	return &Processor{store: store, notifier: notifier, detector: detector}
}

// Process routes a normalized event. Unknown actions are soft-ignored: a new
// action type Pipedrive starts sending must not turn into an endless retry
// loop, so the request still succeeds with Processed=false.
func (p *Processor) Process(ctx context.Context, evt *Event) (Result, error) {
	logger := log.With().
		Str("object_type", evt.ObjectType).
		Str("object_id", evt.ObjectID).
		Str("action", string(evt.Action)).
		Int("attempt", evt.Meta.Attempt).
		Logger()

	switch evt.Action {
	case ActionCreate:
		if err := p.handleUpsert(evt, NotificationCreated, nil); err != nil {
			logger.Error().Err(err).Msg("create failed")
			return Result{}, err
		}
	case ActionUpdate:
		diff := Diff(evt.Previous, evt.Current)
		if err := p.handleUpsert(evt, NotificationUpdated, diff); err != nil {
			logger.Error().Err(err).Msg("update failed")
			return Result{}, err
		}
	case ActionDelete:
		if err := p.handleDelete(evt); err != nil {
			logger.Error().Err(err).Msg("delete failed")
			return Result{}, err
		}
	case ActionMerge:
		if err := p.handleMerge(evt); err != nil {
			logger.Error().Err(err).Msg("merge failed")
			return Result{}, err
		}
	default:
		logger.Warn().Str("raw_action", evt.Meta.RawAction).Msg("ignoring unrecognized webhook action")
		return Result{Processed: false, Action: string(ActionUnknown)}, nil
	}

	logger.Info().Msg("webhook processed")
	return Result{Processed: true, Action: string(evt.Action)}, nil
}

func (p *Processor) handleUpsert(evt *Event, notificationType string, diff map[string]FieldChange) error {
	data := evt.Current
	if data == nil {
		data = map[string]any{}
	}

	if _, err := p.store.Upsert(evt.ObjectType, evt.ObjectID, data); err != nil {
		return &pkgerrors.ProcessingError{Op: "upsert " + evt.ObjectType, Err: err}
	}

	p.notifier.Publish(Notification{
		Type:       notificationType,
		ObjectType: evt.ObjectType,
		ObjectID:   evt.ObjectID,
		Source:     "webhook",
		Diff:       diff,
	})

	// A create or update landing shortly after a delete of a similar record
	// is the fallback signal for a merge the platform never announced.
	if p.detector != nil {
		if mergedID, ok := p.detector.Correlate(evt.ObjectType, evt.ObjectID, data); ok && mergedID != evt.ObjectID {
			migrated, err := p.store.MigrateRelations(evt.ObjectType, mergedID, evt.ObjectID)
			if err != nil {
				return &pkgerrors.ProcessingError{Op: "migrate relations for inferred merge", Err: err}
			}
			p.notifier.Publish(Notification{
				Type:              NotificationMerged,
				ObjectType:        evt.ObjectType,
				ObjectID:          mergedID,
				Source:            "webhook",
				SurvivingID:       evt.ObjectID,
				MigratedRelations: migrated,
				Inferred:          true,
			})
		}
	}
	return nil
}

func (p *Processor) handleDelete(evt *Event) error {
	// Last known data comes from the payload's previous snapshot; older
	// deliveries may not carry one.
	lastKnown := evt.Previous
	if lastKnown == nil {
		if existing, err := p.store.GetByExternalID(evt.ObjectType, evt.ObjectID); err == nil && existing != nil {
			lastKnown = existing.Data
		}
	}

	if err := p.store.MarkDeleted(evt.ObjectType, evt.ObjectID); err != nil {
		return &pkgerrors.ProcessingError{Op: "delete " + evt.ObjectType, Err: err}
	}

	if p.detector != nil {
		p.detector.TrackDelete(evt.ObjectType, evt.ObjectID, lastKnown)
	}

	p.notifier.Publish(Notification{
		Type:       NotificationDeleted,
		ObjectType: evt.ObjectType,
		ObjectID:   evt.ObjectID,
		Source:     "webhook",
		LastKnown:  lastKnown,
	})
	return nil
}

// handleMerge applies an explicit merge event: the merged id in the event
// goes away, the surviving record is in the current snapshot. Applying the
// same merge twice is safe: no relations are left pointing at the merged id
// and the soft delete no-ops.
func (p *Processor) handleMerge(evt *Event) error {
	survivingID, _ := stringValue(evt.Current["id"])

	var migrated int64
	if survivingID != "" && survivingID != evt.ObjectID {
		var err error
		migrated, err = p.store.MigrateRelations(evt.ObjectType, evt.ObjectID, survivingID)
		if err != nil {
			return &pkgerrors.ProcessingError{Op: "migrate relations " + evt.ObjectType, Err: err}
		}
	}

	if err := p.store.MarkDeleted(evt.ObjectType, evt.ObjectID); err != nil {
		return &pkgerrors.ProcessingError{Op: "delete merged " + evt.ObjectType, Err: err}
	}

	p.notifier.Publish(Notification{
		Type:              NotificationMerged,
		ObjectType:        evt.ObjectType,
		ObjectID:          evt.ObjectID,
		Source:            "webhook",
		SurvivingID:       survivingID,
		MigratedRelations: migrated,
	})
	return nil
}

// Diff returns the fields whose values differ between the two snapshots. A
// field present on one side and absent on the other counts as changed; two
// absent sides do not.
func Diff(previous, current map[string]any) map[string]FieldChange {
	diff := make(map[string]FieldChange)

	for key, newVal := range current {
		oldVal, existed := previous[key]
		if !existed || !reflect.DeepEqual(oldVal, newVal) {
			diff[key] = FieldChange{Old: oldVal, New: newVal}
		}
	}
	for key, oldVal := range previous {
		if _, exists := current[key]; !exists {
			diff[key] = FieldChange{Old: oldVal, New: nil}
		}
	}

	if len(diff) == 0 {
		return nil
	}
	return diff
}

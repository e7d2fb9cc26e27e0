package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"pipesync/internal/platform/models"
)

type EntityRepository struct {
	db *sql.DB
}

func NewEntityRepository(db *sql.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// Upsert inserts or replaces the mirrored record keyed by
// (object_type, external_id). A revived record loses its deleted_at marker,
// which is what makes out-of-order UPDATE-before-CREATE deliveries safe.
func (r *EntityRepository) Upsert(objectType, externalID string, data map[string]any) (*models.Entity, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	id := "ent_" + uuid.New().String()

	query := `
		INSERT INTO entities (id, object_type, external_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_type, external_id)
		DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at, deleted_at = NULL
	`
	if _, err := r.db.Exec(query, id, objectType, externalID, string(dataJSON), now, now); err != nil {
		return nil, err
	}

	return r.GetByExternalID(objectType, externalID)
}

func (r *EntityRepository) GetByExternalID(objectType, externalID string) (*models.Entity, error) {
	query := `
		SELECT id, object_type, external_id, data, deleted_at, created_at, updated_at
		FROM entities WHERE object_type = ? AND external_id = ?
	`
	row := r.db.QueryRow(query, objectType, externalID)
	return scanEntity(row)
}

// MarkDeleted soft-deletes the record. Already-deleted and never-seen records
// are a no-op, so re-delivered DELETE events are safe.
func (r *EntityRepository) MarkDeleted(objectType, externalID string) error {
	query := `UPDATE entities SET deleted_at = ?, updated_at = ? WHERE object_type = ? AND external_id = ? AND deleted_at IS NULL`
	_, err := r.db.Exec(query, time.Now().Unix(), time.Now().Unix(), objectType, externalID)
	return err
}

// MigrateRelations rewrites every relation endpoint that points at the merged
// id so it points at the surviving id, and returns how many rows moved.
func (r *EntityRepository) MigrateRelations(objectType, mergedID, survivingID string) (int64, error) {
	var migrated int64

	res, err := r.db.Exec(
		`UPDATE entity_relations SET from_id = ? WHERE from_type = ? AND from_id = ?`,
		survivingID, objectType, mergedID,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	migrated += n

	res, err = r.db.Exec(
		`UPDATE entity_relations SET to_id = ? WHERE to_type = ? AND to_id = ?`,
		survivingID, objectType, mergedID,
	)
	if err != nil {
		return migrated, err
	}
	n, _ = res.RowsAffected()
	migrated += n

	return migrated, nil
}

func (r *EntityRepository) CreateRelation(rel *models.EntityRelation) error {
	rel.ID = "rel_" + uuid.New().String()
	rel.CreatedAt = time.Now().Unix()

	query := `
		INSERT INTO entity_relations (id, relation_type, from_type, from_id, to_type, to_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, rel.ID, rel.RelationType, rel.FromType, rel.FromID, rel.ToType, rel.ToID, rel.CreatedAt)
	return err
}

func (r *EntityRepository) ListByType(objectType string, limit, offset int) ([]*models.Entity, error) {
	query := `
		SELECT id, object_type, external_id, data, deleted_at, created_at, updated_at
		FROM entities WHERE object_type = ? AND deleted_at IS NULL
		ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`
	rows, err := r.db.Query(query, objectType, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*models.Entity
	for rows.Next() {
		e, err := scanEntityRows(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func scanEntity(row *sql.Row) (*models.Entity, error) {
	var e models.Entity
	var dataStr string
	var deletedAt sql.NullInt64

	err := row.Scan(&e.ID, &e.ObjectType, &e.ExternalID, &dataStr, &deletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Int64
	}
	json.Unmarshal([]byte(dataStr), &e.Data)

	return &e, nil
}

func scanEntityRows(rows *sql.Rows) (*models.Entity, error) {
	var e models.Entity
	var dataStr string
	var deletedAt sql.NullInt64

	err := rows.Scan(&e.ID, &e.ObjectType, &e.ExternalID, &dataStr, &deletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Int64
	}
	json.Unmarshal([]byte(dataStr), &e.Data)

	return &e, nil
}

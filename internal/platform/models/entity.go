package models

// Entity is the local mirror of a CRM record, keyed by the CRM's own
// identifier. ObjectType matches the webhook's entity naming ("deals",
// "persons", "organizations", ...).
type Entity struct {
	ID         string         `json:"id"`
	ObjectType string         `json:"object_type"`
	ExternalID string         `json:"external_id"`
	Data       map[string]any `json:"data"` // JSON blob in DB
	DeletedAt  *int64         `json:"deleted_at,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// EntityRelation links one mirrored record to another, e.g. a deal to its
// person. On a merge, rows pointing at the merged id are rewritten to the
// surviving id.
type EntityRelation struct {
	ID           string `json:"id"`
	RelationType string `json:"relation_type"`
	FromType     string `json:"from_type"`
	FromID       string `json:"from_id"`
	ToType       string `json:"to_type"`
	ToID         string `json:"to_id"`
	CreatedAt    int64  `json:"created_at"`
}

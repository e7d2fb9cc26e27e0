package webhook

// Version identifies the wire format of an inbound payload.
type Version string

const (
	VersionV1 Version = "1.0"
	VersionV2 Version = "2.0"
)

// Action is the normalized change type. Raw action strings differ between
// versions (v1: added/updated/deleted/merged, v2: create/change/delete) and
// are collapsed here.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionMerge   Action = "merge"
	ActionUnknown Action = "unknown"
)

// Meta carries the delivery metadata shared by both formats. Attempt counts
// re-deliveries; 0 means first delivery.
type Meta struct {
	UserID       string
	CompanyID    string
	ChangeSource string // "app" or "api"
	IsBulkUpdate bool
	Attempt      int
	RawAction    string
}

// Event is the version-agnostic record the processor consumes. ObjectID is
// always a string; v1 sends integer ids and v2 may send opaque string ids.
type Event struct {
	Version    Version
	Action     Action
	ObjectType string
	ObjectID   string
	Current    map[string]any
	Previous   map[string]any
	Meta       Meta
}

func normalizeAction(raw string) Action {
	switch raw {
	case "added", "create":
		return ActionCreate
	case "updated", "change":
		return ActionUpdate
	case "deleted", "delete":
		return ActionDelete
	case "merged":
		return ActionMerge
	default:
		return ActionUnknown
	}
}

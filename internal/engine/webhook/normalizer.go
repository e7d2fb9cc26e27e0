package webhook

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	pkgerrors "pipesync/internal/pkg/errors"
)

// rawPayload covers both wire formats; version-specific keys stay nil for the
// other version.
type rawPayload struct {
	Event    string         `json:"event"`
	Current  map[string]any `json:"current"`
	Data     map[string]any `json:"data"`
	Previous map[string]any `json:"previous"`
	Meta     map[string]any `json:"meta"`
}

// Normalize parses a raw delivery into an Event. The request must be a POST
// with a JSON content type; that is checked before any version detection.
// Required meta keys missing means the payload is rejected outright, never
// defaulted.
func Normalize(r *http.Request, body []byte) (*Event, error) {
	if r.Method != http.MethodPost {
		return nil, &pkgerrors.FormatError{Reason: "webhook must be a POST request"}
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, &pkgerrors.FormatError{Reason: "webhook must have a JSON content type"}
	}

	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &pkgerrors.FormatError{Reason: "body is not valid JSON"}
	}
	if raw.Meta == nil {
		return nil, &pkgerrors.FormatError{Reason: "missing meta"}
	}

	version := VersionV1
	if v, ok := stringValue(raw.Meta["version"]); ok && v == "2.0" {
		version = VersionV2
	}

	switch version {
	case VersionV2:
		return normalizeV2(&raw)
	default:
		return normalizeV1(&raw)
	}
}

func normalizeV1(raw *rawPayload) (*Event, error) {
	if raw.Event == "" {
		return nil, &pkgerrors.FormatError{Reason: "v1 payload missing event"}
	}
	action, ok := stringValue(raw.Meta["action"])
	if !ok {
		return nil, &pkgerrors.FormatError{Reason: "v1 payload missing meta.action"}
	}
	objectType, ok := stringValue(raw.Meta["object"])
	if !ok {
		return nil, &pkgerrors.FormatError{Reason: "v1 payload missing meta.object"}
	}
	objectID, ok := stringValue(raw.Meta["id"])
	if !ok {
		return nil, &pkgerrors.FormatError{Reason: "v1 payload missing meta.id"}
	}

	return &Event{
		Version:    VersionV1,
		Action:     normalizeAction(action),
		ObjectType: objectType,
		ObjectID:   objectID,
		Current:    raw.Current,
		Previous:   raw.Previous,
		Meta:       normalizeMeta(raw.Meta, action),
	}, nil
}

func normalizeV2(raw *rawPayload) (*Event, error) {
	action, ok := stringValue(raw.Meta["action"])
	if !ok {
		return nil, &pkgerrors.FormatError{Reason: "v2 payload missing meta.action"}
	}
	objectType, ok := stringValue(raw.Meta["entity"])
	if !ok {
		return nil, &pkgerrors.FormatError{Reason: "v2 payload missing meta.entity"}
	}
	objectID, ok := stringValue(raw.Meta["entity_id"])
	if !ok {
		return nil, &pkgerrors.FormatError{Reason: "v2 payload missing meta.entity_id"}
	}

	return &Event{
		Version:    VersionV2,
		Action:     normalizeAction(action),
		ObjectType: objectType,
		ObjectID:   objectID,
		Current:    raw.Data,
		Previous:   raw.Previous,
		Meta:       normalizeMeta(raw.Meta, action),
	}, nil
}

func normalizeMeta(meta map[string]any, rawAction string) Meta {
	m := Meta{RawAction: rawAction}

	if v, ok := stringValue(meta["user_id"]); ok {
		m.UserID = v
	}
	if v, ok := stringValue(meta["company_id"]); ok {
		m.CompanyID = v
	}
	if v, ok := stringValue(meta["change_source"]); ok {
		m.ChangeSource = v
	}
	if v, ok := meta["is_bulk_update"].(bool); ok {
		m.IsBulkUpdate = v
	}
	// v1 calls the re-delivery counter "retry", v2 calls it "attempt".
	if v, ok := intValue(meta["attempt"]); ok {
		m.Attempt = v
	} else if v, ok := intValue(meta["retry"]); ok {
		m.Attempt = v
	}

	return m
}

// stringValue normalizes string and numeric JSON values to a string. Numeric
// ids come in as float64 from encoding/json; integral values must not grow a
// decimal point.
func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return "", false
		}
		return val, true
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return fmt.Sprintf("%v", val), true
	case json.Number:
		return val.String(), true
	default:
		return "", false
	}
}

func intValue(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n, true
		}
	}
	return 0, false
}

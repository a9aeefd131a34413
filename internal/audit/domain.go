package audit

import (
	"encoding/json"
	"sort"
	"time"
)

// Entry is one audit row: who did what to which entity, with full
// before/after snapshots and the fields that changed between them.
type Entry struct {
	ID            int64          `json:"id"`
	RequestID     string         `json:"request_id"`
	UserID        int64          `json:"user_id"`
	Action        string         `json:"action"`
	Entity        string         `json:"entity"`
	EntityID      string         `json:"entity_id"`
	Payload       map[string]any `json:"payload,omitempty"`
	ChangedFields []string       `json:"changed_fields"`
	OldValues     map[string]any `json:"old_values,omitempty"`
	NewValues     map[string]any `json:"new_values,omitempty"`
	StatusCode    int            `json:"status_code"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ChangedFields returns the sorted names of fields whose values differ
// between the two snapshots, including fields present on only one side.
func ChangedFields(oldValues, newValues map[string]any) []string {
	seen := make(map[string]bool)
	var fields []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}
	for name, oldVal := range oldValues {
		newVal, ok := newValues[name]
		if !ok || !equalValue(oldVal, newVal) {
			add(name)
		}
	}
	for name := range newValues {
		if _, ok := oldValues[name]; !ok {
			add(name)
		}
	}
	sort.Strings(fields)
	return fields
}

func equalValue(a, b any) bool {
	// Snapshots come from JSON decoding, so scalar comparison covers
	// almost everything; composites fall back to re-encoding.
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return encode(a) == encode(b)
}

func encode(v any) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

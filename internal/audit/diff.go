package audit

import "reflect"

// Fields that must never appear inside a changes payload, under any action.
var denylistedFields = map[string]struct{}{
	"password":       {},
	"password_hash":  {},
	"session_token":  {},
	"oauth_data":     {},
	"access_control": {},
}

// DenylistedField reports whether a field is excluded from audit payloads.
func DenylistedField(name string) bool {
	_, ok := denylistedFields[name]
	return ok
}

// DiffFields compares a record's fields against their last persisted values
// and returns the changed set, excluding denylisted fields. A field with no
// prior counterpart diffs from nil.
func DiffFields(previous, next map[string]any) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for field, value := range next {
		if DenylistedField(field) {
			continue
		}
		prior, existed := previous[field]
		if existed && reflect.DeepEqual(prior, value) {
			continue
		}
		if !existed {
			prior = nil
		}
		changes[field] = FieldChange{From: prior, To: value}
	}
	return changes
}

// ScrubRecord copies a full record payload with denylisted fields removed.
// Used for CREATE and DELETE entries, which carry whole records.
func ScrubRecord(record map[string]any) map[string]any {
	scrubbed := make(map[string]any, len(record))
	for field, value := range record {
		if DenylistedField(field) {
			continue
		}
		scrubbed[field] = value
	}
	return scrubbed
}

// ChangesPayload converts a field diff into the generic changes map stored on
// an entry.
func ChangesPayload(diff map[string]FieldChange) map[string]any {
	payload := make(map[string]any, len(diff))
	for field, change := range diff {
		payload[field] = change
	}
	return payload
}

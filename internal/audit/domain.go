package audit

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/voyagedesk/voyagedesk/internal/authz"
)

// Action identifies what an audit entry records.
type Action string

const (
	ActionCreate              Action = "CREATE"
	ActionUpdate              Action = "UPDATE"
	ActionDelete              Action = "DELETE"
	ActionRead                Action = "READ"
	ActionLogin               Action = "LOGIN"
	ActionContextSwitched     Action = "CONTEXT_SWITCHED"
	ActionPermissionDelegated Action = "PERMISSION_DELEGATED"
	ActionDelegationRevoked   Action = "DELEGATION_REVOKED"
	ActionOverrideCreated     Action = "OVERRIDE_CREATED"
	ActionEmergencyPermission Action = "EMERGENCY_PERMISSION"
)

// FieldChange captures a single field transition. From is nil when the field
// had no persisted counterpart (new record).
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Metadata carries request-level context for an entry.
type Metadata struct {
	IP     string    `json:"ip,omitempty"`
	Method string    `json:"method,omitempty"`
	At     time.Time `json:"timestamp"`
}

// Entry is one immutable audit record. Entries are never updated or deleted
// through the API surface.
type Entry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Username   string         `json:"username"`
	Action     Action         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	EntityName string         `json:"entityName,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
	Metadata   Metadata       `json:"metadata"`
	Severity   authz.Severity `json:"severity"`
	Active     bool           `json:"active"`
	Exists     bool           `json:"exists"`
}

// Event is the input a trigger point supplies; the recorder fills in actor,
// id, severity default, and metadata.
type Event struct {
	Action     Action
	EntityType string
	EntityID   string
	EntityName string
	Changes    map[string]any
	Severity   authz.Severity
}

var titleCaser = cases.Title(language.English)

// EntityLabel derives a best-effort human label from a class name when no
// explicit name is available: "PermissionDelegation" becomes
// "Permission Delegation".
func EntityLabel(entityType string) string {
	var words []string
	var current strings.Builder
	for _, r := range entityType {
		if unicode.IsUpper(r) && current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return titleCaser.String(strings.ToLower(strings.Join(words, " ")))
}

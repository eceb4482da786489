package sessctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

type mockContexts struct {
	contexts []authz.PermissionContext
}

func (m *mockContexts) LoadContexts(ctx context.Context) ([]authz.PermissionContext, error) {
	return m.contexts, nil
}

func (m *mockContexts) GetContext(ctx context.Context, id string) (*authz.PermissionContext, error) {
	for _, pc := range m.contexts {
		if pc.ID == id {
			return &pc, nil
		}
	}
	return nil, shared.ErrNotFound
}

type mockSessions struct {
	sessions map[string]*shared.Session
}

func (m *mockSessions) Get(ctx context.Context, id string) (*shared.Session, error) {
	sess, ok := m.sessions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

func (m *mockSessions) SetActiveContext(ctx context.Context, sessionID, contextID string) (string, error) {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return "", shared.ErrNotFound
	}
	previous := sess.ActiveContext
	sess.ActiveContext = contextID
	return previous, nil
}

type mockUsers struct {
	users map[string]*authz.User
}

func (m *mockUsers) GetUser(ctx context.Context, id string) (*authz.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

type mockResolver struct {
	perms map[string][]shared.Permission
}

func (m *mockResolver) EffectivePermissions(ctx context.Context, userID, contextID string) ([]shared.Permission, error) {
	return m.perms[contextID], nil
}

type recordingAuditor struct {
	events []audit.Event
}

func (a *recordingAuditor) Record(ctx context.Context, event audit.Event) {
	a.events = append(a.events, event)
}

type fixture struct {
	service  *Service
	sessions *mockSessions
	auditor  *recordingAuditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	contexts := &mockContexts{contexts: []authz.PermissionContext{
		{ID: "default", Kind: authz.ContextDefault, Name: "Default"},
		{ID: "ops-north", Kind: authz.ContextDepartment, Name: "Operations North",
			AllowedRoles: []string{"department_manager"}},
		{ID: "acme-corp", Kind: authz.ContextCorporateTenant, Name: "Acme Corp",
			AllowedUserIDs: []string{"manager"}},
		{ID: authz.EmergencyContextID, Kind: authz.ContextEmergency, Name: "Emergency",
			AllowedRoles: []string{"system_admin"}},
	}}
	sessions := &mockSessions{sessions: map[string]*shared.Session{
		"sess-1": {ID: "sess-1", UserID: "manager", Username: "morgan", ActiveContext: "default"},
	}}
	auditor := &recordingAuditor{}
	service := NewService(ServiceConfig{
		Contexts: contexts,
		Sessions: sessions,
		Users: &mockUsers{users: map[string]*authz.User{
			"manager":  {ID: "manager", Username: "morgan", RoleName: "department_manager", Active: true},
			"employee": {ID: "employee", Username: "casey", RoleName: "employee", Active: true},
		}},
		Resolver: &mockResolver{perms: map[string][]shared.Permission{
			"ops-north": {shared.PermBookingsViewOwn, shared.PermBookingsApproveTeam},
		}},
		Auditor: auditor,
	})
	return &fixture{service: service, sessions: sessions, auditor: auditor}
}

func TestAvailableContextsFiltersByRoleAndUserAllowlists(t *testing.T) {
	f := newFixture(t)

	available, err := f.service.AvailableContexts(context.Background(), "manager")
	require.NoError(t, err)
	ids := make([]string, len(available))
	for i, pc := range available {
		ids[i] = pc.ID
	}
	assert.ElementsMatch(t, []string{"default", "ops-north", "acme-corp"}, ids,
		"open contexts plus role and user allowlist matches; emergency stays out")

	available, err = f.service.AvailableContexts(context.Background(), "employee")
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "default", available[0].ID)
}

func TestSwitchContextReturnsPreviousAndAppliedPermissions(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.SwitchContext(context.Background(), "sess-1", "manager", "ops-north")
	require.NoError(t, err)
	assert.Equal(t, "default", result.PreviousContext)
	assert.Equal(t, "ops-north", result.ActiveContext)
	assert.Equal(t, []shared.Permission{shared.PermBookingsViewOwn, shared.PermBookingsApproveTeam},
		result.AppliedPermissions)
	assert.Equal(t, "ops-north", f.sessions.sessions["sess-1"].ActiveContext)

	require.Len(t, f.auditor.events, 1)
	event := f.auditor.events[0]
	assert.Equal(t, audit.ActionContextSwitched, event.Action)
	assert.Equal(t, "sess-1", event.EntityID)
	assert.Equal(t, "default", event.Changes["previousContext"])
	assert.Equal(t, "ops-north", event.Changes["newContext"])
}

func TestSwitchContextRejectsUnavailableContext(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SwitchContext(context.Background(), "sess-1", "manager", authz.EmergencyContextID)
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, "default", f.sessions.sessions["sess-1"].ActiveContext)
	assert.Empty(t, f.auditor.events)
}

func TestSwitchContextRejectsUnknownContext(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SwitchContext(context.Background(), "sess-1", "manager", "nope")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSwitchContextRejectsForeignSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SwitchContext(context.Background(), "sess-1", "employee", "default")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

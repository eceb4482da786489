package delegation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

type mockRepo struct {
	delegations map[string]*authz.Delegation
}

func newMockRepo() *mockRepo {
	return &mockRepo{delegations: make(map[string]*authz.Delegation)}
}

func (m *mockRepo) Create(ctx context.Context, d authz.Delegation) error {
	m.delegations[d.ID] = &d
	return nil
}

func (m *mockRepo) Get(ctx context.Context, id string) (*authz.Delegation, error) {
	d, ok := m.delegations[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *mockRepo) Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) error {
	d := m.delegations[id]
	d.Status = authz.DelegationRevoked
	d.RevokedBy = revokedBy
	d.RevokedAt = &at
	d.RevocationReason = reason
	return nil
}

func (m *mockRepo) ListByDelegator(ctx context.Context, delegatorID string) ([]authz.Delegation, error) {
	var out []authz.Delegation
	for _, d := range m.delegations {
		if d.DelegatorID == delegatorID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockRepo) ListByDelegate(ctx context.Context, delegateID string) ([]authz.Delegation, error) {
	var out []authz.Delegation
	for _, d := range m.delegations {
		if d.DelegateID == delegateID {
			out = append(out, *d)
		}
	}
	return out, nil
}

type mockChecker struct {
	effective map[string][]shared.Permission
	admins    map[string]bool
}

func (m *mockChecker) EffectivePermissions(ctx context.Context, userID, contextID string) ([]shared.Permission, error) {
	return m.effective[userID], nil
}

func (m *mockChecker) HasPermission(ctx context.Context, userID string, perm shared.Permission, contextID string) (bool, error) {
	if perm == shared.PermOverridesManage {
		return m.admins[userID], nil
	}
	return false, nil
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

type recordingAuditor struct {
	events []audit.Event
}

func (a *recordingAuditor) Record(ctx context.Context, event audit.Event) {
	a.events = append(a.events, event)
}

type fixture struct {
	service *Service
	repo    *mockRepo
	checker *mockChecker
	auditor *recordingAuditor
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := authz.NewCatalog([]authz.Role{
		{
			Name:            "department_manager",
			Level:           5,
			BasePermissions: []shared.Permission{shared.PermBookingsApproveTeam, shared.PermDelegationsManage},
			Delegatable:     true,
			Active:          true,
		},
		{
			Name:            "employee",
			Level:           3,
			BasePermissions: []shared.Permission{shared.PermBookingsViewOwn},
			Active:          true,
		},
	})
	require.NoError(t, err)

	repo := newMockRepo()
	checker := &mockChecker{
		effective: map[string][]shared.Permission{
			"manager":  {shared.PermBookingsViewOwn, shared.PermBookingsApproveTeam, shared.PermDelegationsManage},
			"employee": {shared.PermBookingsViewOwn},
		},
		admins: map[string]bool{"admin": true},
	}
	auditor := &recordingAuditor{}
	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	service := NewService(ServiceConfig{
		Repo:    repo,
		Catalog: catalog,
		Users: &mockUsers{users: map[string]*authz.User{
			"manager":  {ID: "manager", RoleName: "department_manager", Active: true},
			"employee": {ID: "employee", RoleName: "employee", Active: true},
			"admin":    {ID: "admin", RoleName: "department_manager", Active: true},
		}},
		Checker: checker,
		Auditor: auditor,
		Clock:   func() time.Time { return now },
	})
	return &fixture{service: service, repo: repo, checker: checker, auditor: auditor, now: now}
}

func TestCreateDelegationWithinEffectiveSet(t *testing.T) {
	f := newFixture(t)
	week := 7 * 24 * time.Hour

	d, err := f.service.Create(context.Background(), CreateRequest{
		DelegatorID: "manager",
		DelegateID:  "employee",
		Permissions: []shared.Permission{shared.PermBookingsApproveTeam},
		Type:        authz.DelegationTemporary,
		Reason:      "annual leave coverage",
		Duration:    &week,
	})
	require.NoError(t, err)
	assert.Equal(t, authz.DelegationActive, d.Status)
	require.NotNil(t, d.ExpiresAt)
	assert.Equal(t, f.now.Add(week), *d.ExpiresAt)

	require.Len(t, f.auditor.events, 1)
	event := f.auditor.events[0]
	assert.Equal(t, audit.ActionPermissionDelegated, event.Action)
	assert.Equal(t, d.ID, event.EntityID)
	assert.Equal(t, "manager -> employee", event.EntityName)
}

func TestCreateRejectsPermissionsBeyondDelegatorGrant(t *testing.T) {
	f := newFixture(t)

	// The manager holds approve_team but not fleet.manage: the subset guard
	// rejects the whole request, not just the excess permission.
	_, err := f.service.Create(context.Background(), CreateRequest{
		DelegatorID: "manager",
		DelegateID:  "employee",
		Permissions: []shared.Permission{shared.PermBookingsApproveTeam, shared.PermFleetManage},
		Type:        authz.DelegationTemporary,
		Reason:      "coverage",
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, f.repo.delegations)
	assert.Empty(t, f.auditor.events)
}

func TestCreateRejectsNonDelegatableRole(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), CreateRequest{
		DelegatorID: "employee",
		DelegateID:  "manager",
		Permissions: []shared.Permission{shared.PermBookingsViewOwn},
		Type:        authz.DelegationStanding,
		Reason:      "shift swap",
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := CreateRequest{
		DelegatorID: "manager",
		DelegateID:  "employee",
		Permissions: []shared.Permission{shared.PermBookingsApproveTeam},
		Type:        authz.DelegationTemporary,
		Reason:      "coverage",
	}

	req := base
	req.Reason = " "
	_, err := f.service.Create(ctx, req)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	req = base
	req.Permissions = nil
	_, err = f.service.Create(ctx, req)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	req = base
	req.Permissions = []shared.Permission{"no.such.permission"}
	_, err = f.service.Create(ctx, req)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	req = base
	req.Type = "permanent"
	_, err = f.service.Create(ctx, req)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	req = base
	req.DelegateID = "ghost"
	_, err = f.service.Create(ctx, req)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRevokeByDelegatorIsImmediatelyTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.service.Create(ctx, CreateRequest{
		DelegatorID: "manager",
		DelegateID:  "employee",
		Permissions: []shared.Permission{shared.PermBookingsApproveTeam},
		Type:        authz.DelegationStanding,
		Reason:      "coverage",
	})
	require.NoError(t, err)
	f.auditor.events = nil

	require.NoError(t, f.service.Revoke(ctx, d.ID, "manager", "returned early"))

	stored := f.repo.delegations[d.ID]
	assert.Equal(t, authz.DelegationRevoked, stored.Status)
	assert.False(t, stored.ActiveAt(f.now))
	assert.False(t, stored.ActiveAt(f.now.Add(-time.Hour)),
		"a revoked delegation never grants, regardless of instant")

	require.Len(t, f.auditor.events, 1)
	assert.Equal(t, audit.ActionDelegationRevoked, f.auditor.events[0].Action)

	// Terminal: a second revocation is rejected.
	err = f.service.Revoke(ctx, d.ID, "manager", "again")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestRevokeByThirdPartyRequiresAdministrativeAuthority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.service.Create(ctx, CreateRequest{
		DelegatorID: "manager",
		DelegateID:  "employee",
		Permissions: []shared.Permission{shared.PermBookingsApproveTeam},
		Type:        authz.DelegationStanding,
		Reason:      "coverage",
	})
	require.NoError(t, err)

	err = f.service.Revoke(ctx, d.ID, "employee", "no longer wanted")
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, f.service.Revoke(ctx, d.ID, "admin", "policy violation"))
	assert.Equal(t, authz.DelegationRevoked, f.repo.delegations[d.ID].Status)
}

func TestListActiveFiltersExpiredAndRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hour := time.Hour
	live, err := f.service.Create(ctx, CreateRequest{
		DelegatorID: "manager", DelegateID: "employee",
		Permissions: []shared.Permission{shared.PermBookingsApproveTeam},
		Type:        authz.DelegationTemporary, Reason: "coverage", Duration: &hour,
	})
	require.NoError(t, err)

	expired := authz.Delegation{
		ID: "expired", DelegatorID: "manager", DelegateID: "employee",
		Permissions: []shared.Permission{shared.PermBookingsViewOwn},
		Type:        authz.DelegationTemporary, Status: authz.DelegationActive,
		CreatedAt: f.now.Add(-2 * time.Hour),
	}
	past := f.now.Add(-time.Minute)
	expired.ExpiresAt = &past
	require.NoError(t, f.repo.Create(ctx, expired))

	issued, err := f.service.ListActive(ctx, "manager")
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, live.ID, issued[0].ID)

	received, err := f.service.ListDelegated(ctx, "employee")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, live.ID, received[0].ID)
}

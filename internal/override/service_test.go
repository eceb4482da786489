package override

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

type mockRepo struct {
	created      []authz.Override
	elevationIDs []string
	createErr    error
}

func (m *mockRepo) Create(ctx context.Context, o authz.Override, elevationID string) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, o)
	m.elevationIDs = append(m.elevationIDs, elevationID)
	return nil
}

func (m *mockRepo) OverridesFor(ctx context.Context, userID string) ([]authz.Override, error) {
	var out []authz.Override
	for _, o := range m.created {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type mockChecker struct {
	admins map[string]bool
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

type mockAuditor struct {
	events      []audit.Event
	critical    []audit.Event
	criticalErr error
}

func (m *mockAuditor) Record(ctx context.Context, event audit.Event) {
	m.events = append(m.events, event)
}

func (m *mockAuditor) RecordCritical(ctx context.Context, event audit.Event) error {
	if m.criticalErr != nil {
		return m.criticalErr
	}
	m.critical = append(m.critical, event)
	return nil
}

type countingMetrics struct {
	elevations int
}

func (c *countingMetrics) EmergencyElevation() { c.elevations++ }

type fixture struct {
	service *Service
	repo    *mockRepo
	auditor *mockAuditor
	metrics *countingMetrics
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &mockRepo{}
	auditor := &mockAuditor{}
	metrics := &countingMetrics{}
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	service := NewService(ServiceConfig{
		Repo:    repo,
		Users:   &mockUsers{users: map[string]*authz.User{"u1": {ID: "u1", Active: true}}},
		Checker: &mockChecker{admins: map[string]bool{"admin": true}},
		Auditor: auditor,
		Metrics: metrics,
		Clock:   func() time.Time { return now },
	})
	return &fixture{service: service, repo: repo, auditor: auditor, metrics: metrics, now: now}
}

func TestCreateRequiresAdministrativeAuthority(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(context.Background(), CreateRequest{
		UserID: "u1", Type: authz.OverrideDeny, Permission: shared.PermFleetManage,
		Reason: "incident lockdown", GrantedBy: "not-admin",
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.auditor.events)
}

func TestCreateGrantNeedsNoSubsetCheckAndIsAudited(t *testing.T) {
	f := newFixture(t)
	// The admin does not hold fleet.manage; an override grant is the escape
	// hatch and must still succeed.
	o, err := f.service.Create(context.Background(), CreateRequest{
		UserID: "u1", Type: authz.OverrideGrant, Permission: shared.PermFleetManage,
		Reason: "vendor outage coverage", GrantedBy: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, authz.SeverityNormal, o.Severity)

	require.Len(t, f.auditor.events, 1)
	event := f.auditor.events[0]
	assert.Equal(t, audit.ActionOverrideCreated, event.Action)
	assert.Equal(t, o.ID, event.EntityID)
	assert.Equal(t, shared.PermFleetManage, event.Changes["permission"])
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, CreateRequest{
		UserID: "u1", Type: authz.OverrideGrant, Permission: shared.PermFleetManage,
		Reason: "   ", GrantedBy: "admin",
	})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = f.service.Create(ctx, CreateRequest{
		UserID: "u1", Type: "suspend", Permission: shared.PermFleetManage,
		Reason: "x", GrantedBy: "admin",
	})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = f.service.Create(ctx, CreateRequest{
		UserID: "u1", Type: authz.OverrideGrant, Permission: "bogus.permission",
		Reason: "x", GrantedBy: "admin",
	})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	past := f.now.Add(-time.Hour)
	_, err = f.service.Create(ctx, CreateRequest{
		UserID: "u1", Type: authz.OverrideGrant, Permission: shared.PermFleetManage,
		Reason: "x", GrantedBy: "admin", ExpiresAt: &past,
	})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestEmergencyElevationDefaultsAndCriticalAudit(t *testing.T) {
	f := newFixture(t)
	elevation, err := f.service.CreateEmergencyElevation(context.Background(), ElevationRequest{
		UserID:      "u1",
		Permissions: []shared.Permission{shared.PermFleetManage, shared.PermBookingsEdit},
		Reason:      "storm rerouting",
		ElevatedBy:  "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(DefaultElevationDuration), elevation.ExpiresAt)

	require.Len(t, f.repo.created, 2)
	for i, o := range f.repo.created {
		assert.Equal(t, authz.SeverityCritical, o.Severity)
		assert.Equal(t, authz.OverrideGrant, o.Type)
		assert.Equal(t, authz.EmergencyContextID, o.Context)
		require.NotNil(t, o.ExpiresAt)
		assert.Equal(t, elevation.ExpiresAt, *o.ExpiresAt)
		assert.Equal(t, elevation.ID, f.repo.elevationIDs[i])
	}

	require.Len(t, f.auditor.critical, 1, "exactly one confirmed audit write per elevation")
	assert.Empty(t, f.auditor.events, "the elevation entry never goes through the async path")
	event := f.auditor.critical[0]
	assert.Equal(t, audit.ActionEmergencyPermission, event.Action)
	assert.Equal(t, elevation.ID, event.EntityID)
	assert.Equal(t, 1, f.metrics.elevations)
}

func TestEmergencyElevationFailsWhenAuditWriteFails(t *testing.T) {
	f := newFixture(t)
	f.auditor.criticalErr = errors.New("audit store down")

	_, err := f.service.CreateEmergencyElevation(context.Background(), ElevationRequest{
		UserID:      "u1",
		Permissions: []shared.Permission{shared.PermFleetManage},
		Reason:      "storm rerouting",
		ElevatedBy:  "admin",
	})
	require.Error(t, err)
	assert.Equal(t, 0, f.metrics.elevations)
}

func TestEmergencyElevationRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.CreateEmergencyElevation(context.Background(), ElevationRequest{
		UserID:      "u1",
		Permissions: []shared.Permission{shared.PermFleetManage},
		Reason:      "x",
		ElevatedBy:  "u1",
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

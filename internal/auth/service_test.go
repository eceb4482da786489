package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/shared"
	"github.com/voyagedesk/voyagedesk/internal/users"
)

type mockVerifier struct {
	accounts map[string]*users.Account
}

func (m *mockVerifier) Authenticate(ctx context.Context, username, password string) (*users.Account, error) {
	a, ok := m.accounts[username]
	if !ok || password != "correct horse battery" {
		return nil, shared.ErrUnauthenticated
	}
	return a, nil
}

type mockSessions struct {
	created   []*shared.Session
	destroyed []string
}

func (m *mockSessions) Create(ctx context.Context, userID, username, defaultContext string) (*shared.Session, error) {
	sess := &shared.Session{ID: "sess-" + userID, UserID: userID, Username: username, ActiveContext: defaultContext}
	m.created = append(m.created, sess)
	return sess, nil
}

func (m *mockSessions) Destroy(ctx context.Context, id string) error {
	m.destroyed = append(m.destroyed, id)
	return nil
}

type recordingAuditor struct {
	events []audit.Event
}

func (a *recordingAuditor) Record(ctx context.Context, event audit.Event) {
	a.events = append(a.events, event)
}

func newTestService() (*Service, *mockSessions, *recordingAuditor) {
	sessions := &mockSessions{}
	auditor := &recordingAuditor{}
	service := NewService(ServiceConfig{
		Verifier: &mockVerifier{accounts: map[string]*users.Account{
			"morgan": {ID: "u1", Username: "morgan", Active: true},
		}},
		Sessions:       sessions,
		Auditor:        auditor,
		DefaultContext: "default",
	})
	return service, sessions, auditor
}

func TestLoginOpensSessionInDefaultContext(t *testing.T) {
	service, sessions, auditor := newTestService()

	sess, err := service.Login(context.Background(), "morgan", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "default", sess.ActiveContext)
	require.Len(t, sessions.created, 1)

	require.Len(t, auditor.events, 1)
	event := auditor.events[0]
	assert.Equal(t, audit.ActionLogin, event.Action)
	assert.Equal(t, "u1", event.EntityID)
	assert.Equal(t, "morgan", event.EntityName)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	service, sessions, auditor := newTestService()

	_, err := service.Login(context.Background(), "morgan", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Empty(t, sessions.created)
	assert.Empty(t, auditor.events, "failed logins open no session and record nothing")

	_, err = service.Login(context.Background(), "ghost", "correct horse battery")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutDestroysSession(t *testing.T) {
	service, sessions, _ := newTestService()

	require.NoError(t, service.Logout(context.Background(), "sess-u1"))
	assert.Equal(t, []string{"sess-u1"}, sessions.destroyed)
}

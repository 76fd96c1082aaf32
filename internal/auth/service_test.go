package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mealdesk/mealdesk/internal/shared"
)

type sessionRecord struct {
	UserID    int64
	IP        string
	UserAgent string
}

type mockAuthRepo struct {
	users    map[string]*User
	sessions map[string]sessionRecord
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:    make(map[string]*User),
		sessions: make(map[string]sessionRecord),
	}
}

func (m *mockAuthRepo) addUser(t *testing.T, id int64, email, password string, active bool) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &User{ID: id, Email: email, Name: "Test User", PasswordHash: string(hash), IsActive: active}
	m.users[email] = user
	return user
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (m *mockAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	m.sessions[id] = sessionRecord{UserID: userID, IP: ip, UserAgent: ua}
	return nil
}

func (m *mockAuthRepo) DeleteSession(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func TestAuthenticateSuccess(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(t, 7, "chef@mealdesk.local", "correct-horse", true)
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "chef@mealdesk.local", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
}

// Wrong password, unknown account, and a disabled account must be
// indistinguishable to the caller.
func TestAuthenticateUniformFailure(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(t, 7, "chef@mealdesk.local", "correct-horse", true)
	repo.addUser(t, 8, "gone@mealdesk.local", "correct-horse", false)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "chef@mealdesk.local", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@mealdesk.local", "correct-horse")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "gone@mealdesk.local", "correct-horse")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSessionRegistration(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewService(repo)

	require.NoError(t, svc.RegisterSession(context.Background(), "sess-1", 7, time.Now().Add(time.Hour), "127.0.0.1", "test-agent"))
	record := repo.sessions["sess-1"]
	assert.Equal(t, int64(7), record.UserID)
	assert.Equal(t, "127.0.0.1", record.IP)
	assert.Equal(t, "test-agent", record.UserAgent)

	require.NoError(t, svc.RemoveSession(context.Background(), "sess-1"))
	assert.NotContains(t, repo.sessions, "sess-1")
}

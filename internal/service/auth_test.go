package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/hospital_desk/internal/events"
	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/tokens"
)

func TestLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	staff := f.user(t, "nurse", models.RoleStaff)

	res, err := f.auth.Login(ctx, "nurse", "password")
	require.NoError(t, err)
	assert.Equal(t, staff.UserID, res.User.ID)
	assert.Equal(t, models.RoleStaff, res.User.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, 5*time.Second)

	claims, err := tokens.AccessClaimsFromToken(res.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, staff.UserID, claims.UserID)
	assert.Equal(t, "nurse", claims.Username)
	assert.Equal(t, []string{events.UserLoggedIn}, f.events.Types())
}

func TestLogin_Failures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, "nurse", models.RoleStaff)

	tests := []struct {
		name     string
		username string
		password string
		err      error
	}{
		{name: "missing username", password: "password", err: ErrMissingFields},
		{name: "missing password", username: "nurse", err: ErrMissingFields},
		{name: "unknown user", username: "ghost", password: "password", err: ErrInvalidCredentials},
		{name: "wrong password", username: "nurse", password: "nope", err: ErrInvalidCredentials},
		{name: "case sensitive username", username: "NURSE", password: "password", err: ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Login(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.Empty(t, f.events.Events())
}

func TestRegister(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.auth.Register(ctx, "clerk", "secret1", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStaff, u.Role)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	_, err = f.auth.Login(ctx, "clerk", "secret1")
	require.NoError(t, err)
	assert.Equal(t, []string{events.UserRegistered, events.UserLoggedIn}, f.events.Types())
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, "taken", models.RoleStaff)

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name     string
		username string
		password string
		err      error
	}{
		{name: "empty", err: ErrMissingFields},
		{name: "short username", username: "ab", password: "secret1", err: ErrUsernameTooShort},
		{name: "short password", username: "abc", password: "12345", err: ErrPasswordTooShort},
		{name: "long password", username: "abc", password: string(long), err: ErrPasswordTooLong},
		{name: "taken", username: "taken", password: "secret1", err: ErrUsernameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(context.Background(), tt.username, tt.password, "")
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRegister_Code(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.auth.RegistrationCode = "altay"
	ctx := context.Background()

	_, err := f.auth.Register(ctx, "clerk", "secret1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidRegistrationCode)
	_, err = f.auth.Register(ctx, "clerk", "secret1", "")
	assert.ErrorIs(t, err, ErrInvalidRegistrationCode)

	_, err = f.auth.Register(ctx, "clerk", "secret1", "altay")
	require.NoError(t, err)
}

func TestLogout_RevokesToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "nurse", models.RoleStaff)

	res, err := f.auth.Login(ctx, "nurse", "password")
	require.NoError(t, err)
	claims, err := tokens.AccessClaimsFromToken(res.Token, testSecret)
	require.NoError(t, err)

	revoked, err := f.auth.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, f.auth.Logout(ctx, claims.Identity()))
	require.NoError(t, f.auth.Logout(ctx, claims.Identity()))

	revoked, err = f.auth.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	n, err := f.auth.PurgeRevoked(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.user(t, "nurse", models.RoleStaff)

	u, err := f.auth.Me(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "nurse", u.Username)

	_, err = f.auth.Me(context.Background(), models.Identity{UserID: 999})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeedAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.auth.SeedAdmin(ctx, "password")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.auth.SeedAdmin(ctx, "different")
	require.NoError(t, err)
	assert.False(t, created)

	res, err := f.auth.Login(ctx, "admin", "password")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
}

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/hospital_desk/internal/events"
	"github.com/Skotchmaster/hospital_desk/internal/hash"
	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/repo"
	"github.com/Skotchmaster/hospital_desk/internal/testutil"
	"github.com/Skotchmaster/hospital_desk/internal/tokens"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	repo     *repo.GormRepo
	events   *events.Recorder
	auth     *AuthService
	patients *PatientService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := repo.New(testutil.NewPool(t))
	rec := &events.Recorder{}
	return &fixture{
		repo:     r,
		events:   rec,
		auth:     &AuthService{Repo: r, Issuer: tokens.NewIssuer(testSecret, time.Hour), Events: rec},
		patients: &PatientService{Repo: r, Events: rec},
	}
}

func (f *fixture) user(t *testing.T, name, role string) models.Identity {
	t.Helper()
	pw, err := hash.HashPassword("password")
	require.NoError(t, err)
	u := &models.User{Username: name, PasswordHash: pw, Role: role}
	require.NoError(t, f.repo.CreateUser(t.Context(), u))
	return models.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}

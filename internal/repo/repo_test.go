package repo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/repo"
	"github.com/Skotchmaster/hospital_desk/internal/testutil"
)

func newRepo(t *testing.T) *repo.GormRepo {
	t.Helper()
	return repo.New(testutil.NewPool(t))
}

func seedUser(t *testing.T, r *repo.GormRepo, name, role string) *models.User {
	t.Helper()
	u := &models.User{Username: name, PasswordHash: "x", Role: role}
	require.NoError(t, r.CreateUser(context.Background(), u))
	return u
}

func seedPatient(t *testing.T, r *repo.GormRepo, tc string, owner uint, first, last string) *models.Patient {
	t.Helper()
	p := &models.Patient{
		FirstName: first, LastName: last, TCID: tc, PhoneNumber: "555",
		Department: "Cardiology", Complaint: "chest pain", CreatedBy: owner,
	}
	require.NoError(t, r.CreatePatient(context.Background(), p))
	return p
}

func TestUsers(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	ctx := context.Background()

	u := seedUser(t, r, "alice", models.RoleStaff)
	assert.NotZero(t, u.ID)

	got, err := r.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = r.FindUserByUsername(ctx, "Alice")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	err = r.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: "y", Role: models.RoleStaff})
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	byID, err := r.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
}

func TestCreateUserIfNotExists(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	ctx := context.Background()

	created, err := r.CreateUserIfNotExists(ctx, &models.User{Username: "admin", PasswordHash: "h1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, created)

	again := &models.User{Username: "admin", PasswordHash: "h2", Role: models.RoleAdmin}
	created, err = r.CreateUserIfNotExists(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "h1", again.PasswordHash)
}

func TestPatients_ScopeAndOrder(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	ctx := context.Background()

	a := seedUser(t, r, "a", models.RoleStaff)
	b := seedUser(t, r, "b", models.RoleStaff)
	p1 := seedPatient(t, r, "11111111111", a.ID, "Ali", "Veli")
	p2 := seedPatient(t, r, "22222222222", b.ID, "Ayse", "Kaya")
	p3 := seedPatient(t, r, "33333333333", a.ID, "Mehmet", "Demir")

	all, err := r.ListPatients(ctx, repo.PatientScope{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint{p3.ID, p2.ID, p1.ID}, []uint{all[0].ID, all[1].ID, all[2].ID})

	mine, err := r.ListPatients(ctx, repo.PatientScope{CreatedBy: &a.ID})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, p := range mine {
		assert.Equal(t, a.ID, p.CreatedBy)
	}

	empty, err := r.ListPatients(ctx, repo.PatientScope{CreatedBy: new(uint)})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPatients_CRUD(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	ctx := context.Background()

	u := seedUser(t, r, "a", models.RoleStaff)
	p := seedPatient(t, r, "12345678901", u.ID, "Ali", "Veli")

	exists, err := r.PatientTCIDExists(ctx, "12345678901")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := &models.Patient{FirstName: "x", LastName: "y", TCID: "12345678901", PhoneNumber: "1", Department: "d", Complaint: "c", CreatedBy: u.ID}
	assert.ErrorIs(t, r.CreatePatient(ctx, dup), repo.ErrDuplicate)

	updated, err := r.UpdatePatient(ctx, p.ID, repo.PatientUpdate{
		FirstName: "Veli", LastName: "Ali", PhoneNumber: "999", Department: "Neurology", Complaint: "headache",
	})
	require.NoError(t, err)
	assert.Equal(t, "Veli", updated.FirstName)
	assert.Equal(t, "12345678901", updated.TCID)
	assert.Equal(t, u.ID, updated.CreatedBy)

	_, err = r.UpdatePatient(ctx, 9999, repo.PatientUpdate{FirstName: "a"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, r.DeletePatient(ctx, p.ID))
	assert.ErrorIs(t, r.DeletePatient(ctx, p.ID), repo.ErrNotFound)

	_, err = r.GetPatient(ctx, p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestSearchPatients(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	ctx := context.Background()

	a := seedUser(t, r, "a", models.RoleStaff)
	b := seedUser(t, r, "b", models.RoleStaff)
	seedPatient(t, r, "12345678901", a.ID, "Ali", "Veli")
	seedPatient(t, r, "98765432109", b.ID, "Alican", "Kaya")
	seedPatient(t, r, "55555555555", a.ID, "Zeynep", "100%")

	tests := []struct {
		name  string
		q     string
		scope repo.PatientScope
		want  int
	}{
		{name: "first name substring", q: "ali", want: 2},
		{name: "case insensitive last name", q: "KAYA", want: 1},
		{name: "tc prefix", q: "1234", want: 1},
		{name: "tc infix does not match", q: "5678", want: 0},
		{name: "scoped", q: "ali", scope: repo.PatientScope{CreatedBy: &a.ID}, want: 1},
		{name: "percent is literal", q: "%", want: 1},
		{name: "underscore is literal", q: "_", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.SearchPatients(ctx, tt.q, tt.scope, 50)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestBackupLogs(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	ctx := context.Background()

	first := &models.BackupLog{Filename: "a.sql", Filesize: "1 kB", Status: models.BackupStatusSuccess, Message: "ok"}
	second := &models.BackupLog{Status: models.BackupStatusError, Message: "Backup failed with error: Unknown error"}
	require.NoError(t, r.CreateBackupLog(ctx, first))
	require.NoError(t, r.CreateBackupLog(ctx, second))
	assert.False(t, first.Timestamp.IsZero())

	logs, err := r.ListBackupLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, second.ID, logs[0].ID)

	got, err := r.GetBackupLog(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.sql", got.Filename)
}

func TestBackupJobs_Transitions(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job := &models.BackupJob{ID: uuid.New(), Status: models.JobPending, RequestedBy: 1}
	require.NoError(t, r.CreateBackupJob(ctx, job))

	require.NoError(t, r.MarkBackupJobRunning(ctx, job.ID, now))
	assert.ErrorIs(t, r.MarkBackupJobRunning(ctx, job.ID, now), repo.ErrNotFound)

	entry := &models.BackupLog{Status: models.BackupStatusSuccess, Message: "ok"}
	require.NoError(t, r.CreateBackupLog(ctx, entry))
	require.NoError(t, r.FinishBackupJob(ctx, job.ID, models.JobSucceeded, &entry.ID, now))
	assert.ErrorIs(t, r.FinishBackupJob(ctx, job.ID, models.JobFailed, nil, now), repo.ErrNotFound)

	got, err := r.GetBackupJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, got.Status)
	require.NotNil(t, got.LogID)
	assert.Equal(t, entry.ID, *got.LogID)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)

	_, err = r.GetBackupJob(ctx, uuid.New())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestFailUnfinishedBackupJobs(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	ctx := context.Background()

	for _, st := range []models.JobStatus{models.JobPending, models.JobRunning, models.JobSucceeded} {
		require.NoError(t, r.CreateBackupJob(ctx, &models.BackupJob{ID: uuid.New(), Status: st, RequestedBy: 1}))
	}
	n, err := r.FailUnfinishedBackupJobs(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRevokedTokens(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, r.RevokeToken(ctx, "jti-1", 1, now.Add(time.Hour)))
	require.NoError(t, r.RevokeToken(ctx, "jti-1", 1, now.Add(time.Hour)))
	require.NoError(t, r.RevokeToken(ctx, "jti-old", 1, now.Add(-time.Minute)))

	revoked, err := r.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = r.IsTokenRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	n, err := r.PurgeExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDuplicateDetection_Postgres(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	assert.True(t, repo.IsUniqueViolation(fmt.Errorf("insert: %w", pgErr)))
	assert.False(t, repo.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, repo.IsUniqueViolation(errors.New("boom")))
}

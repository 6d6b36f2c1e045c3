package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Skotchmaster/hospital_desk/internal/events"
	"github.com/Skotchmaster/hospital_desk/internal/logging"
	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/repo"
	"github.com/Skotchmaster/hospital_desk/internal/search"
)

var tcIDPattern = regexp.MustCompile(`^\d{11}$`)

type PatientFields struct {
	FirstName   string
	LastName    string
	TCID        string
	PhoneNumber string
	Department  string
	Complaint   string
}

func (f PatientFields) trimmed() PatientFields {
	return PatientFields{
		FirstName:   strings.TrimSpace(f.FirstName),
		LastName:    strings.TrimSpace(f.LastName),
		TCID:        strings.TrimSpace(f.TCID),
		PhoneNumber: strings.TrimSpace(f.PhoneNumber),
		Department:  strings.TrimSpace(f.Department),
		Complaint:   strings.TrimSpace(f.Complaint),
	}
}

func (f PatientFields) mutableMissing() bool {
	return f.FirstName == "" || f.LastName == "" || f.PhoneNumber == "" ||
		f.Department == "" || f.Complaint == ""
}

// PatientService applies per-role visibility and mutation rules to patient records.
type PatientService struct {
	Repo   *repo.GormRepo
	Search search.Index
	Events events.Publisher
}

func scopeFor(id models.Identity) repo.PatientScope {
	if id.IsAdmin() {
		return repo.PatientScope{}
	}
	uid := id.UserID
	return repo.PatientScope{CreatedBy: &uid}
}

func (s *PatientService) List(ctx context.Context, id models.Identity) ([]models.Patient, error) {
	return s.Repo.ListPatients(ctx, scopeFor(id))
}

func (s *PatientService) Get(ctx context.Context, id models.Identity, patientID uint) (*models.Patient, error) {
	p, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !id.IsAdmin() && p.CreatedBy != id.UserID {
		return nil, ErrViewForbidden
	}
	return p, nil
}

func (s *PatientService) Create(ctx context.Context, id models.Identity, in PatientFields) (*models.Patient, error) {
	l := logging.FromContext(ctx).With("svc", "patients.create")

	f := in.trimmed()
	if f.TCID == "" || f.mutableMissing() {
		return nil, ErrFieldsRequired
	}
	if !tcIDPattern.MatchString(f.TCID) {
		return nil, ErrInvalidTCID
	}

	exists, err := s.Repo.PatientTCIDExists(ctx, f.TCID)
	if err != nil {
		return nil, fmt.Errorf("check tc id: %w", err)
	}
	if exists {
		return nil, ErrDuplicateTCID
	}

	p := &models.Patient{
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		TCID:        f.TCID,
		PhoneNumber: f.PhoneNumber,
		Department:  f.Department,
		Complaint:   f.Complaint,
		CreatedBy:   id.UserID,
	}
	if err := s.Repo.CreatePatient(ctx, p); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateTCID
		}
		return nil, fmt.Errorf("create patient: %w", err)
	}

	l.Info("patient_created", "patient_id", p.ID, "user_id", id.UserID)
	s.index(ctx, l, p)
	events.Emit(ctx, s.Events, l, events.New(events.PatientCreated, id.UserID, map[string]any{"patient_id": p.ID}))
	return p, nil
}

// Update overwrites the mutable fields. The tc id is never changed.
func (s *PatientService) Update(ctx context.Context, id models.Identity, patientID uint, in PatientFields) (*models.Patient, error) {
	l := logging.FromContext(ctx).With("svc", "patients.update")

	f := in.trimmed()
	if f.mutableMissing() {
		return nil, ErrFieldsRequired
	}

	current, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !id.IsAdmin() && current.CreatedBy != id.UserID {
		return nil, ErrUpdateForbidden
	}

	p, err := s.Repo.UpdatePatient(ctx, patientID, repo.PatientUpdate{
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		PhoneNumber: f.PhoneNumber,
		Department:  f.Department,
		Complaint:   f.Complaint,
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}

	l.Info("patient_updated", "patient_id", p.ID, "user_id", id.UserID)
	s.index(ctx, l, p)
	events.Emit(ctx, s.Events, l, events.New(events.PatientUpdated, id.UserID, map[string]any{"patient_id": p.ID}))
	return p, nil
}

// Delete removes a record. Only admins reach it; the route enforces that.
func (s *PatientService) Delete(ctx context.Context, id models.Identity, patientID uint) error {
	l := logging.FromContext(ctx).With("svc", "patients.delete")

	if !id.IsAdmin() {
		return ErrForbidden
	}
	if err := s.Repo.DeletePatient(ctx, patientID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrPatientNotFound
		}
		return fmt.Errorf("delete patient: %w", err)
	}

	l.Info("patient_deleted", "patient_id", patientID, "user_id", id.UserID)
	if s.Search != nil {
		if err := s.Search.Delete(ctx, patientID); err != nil {
			l.Warn("search_sync_failed", "patient_id", patientID, "error", err)
		}
	}
	events.Emit(ctx, s.Events, l, events.New(events.PatientDeleted, id.UserID, map[string]any{"patient_id": patientID}))
	return nil
}

// Search matches names by substring and tc id by prefix, within the caller's visibility.
func (s *PatientService) Search(ctx context.Context, id models.Identity, q string, limit int) ([]models.Patient, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrQueryRequired
	}
	idx := s.Search
	if idx == nil {
		idx = &search.DBIndex{Repo: s.Repo}
	}
	return idx.Search(ctx, search.Query{Text: q, CreatedBy: scopeFor(id).CreatedBy, Limit: limit})
}

func (s *PatientService) load(ctx context.Context, patientID uint) (*models.Patient, error) {
	p, err := s.Repo.GetPatient(ctx, patientID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (s *PatientService) index(ctx context.Context, l *slog.Logger, p *models.Patient) {
	if s.Search == nil {
		return
	}
	if err := s.Search.Index(ctx, p); err != nil {
		l.Warn("search_sync_failed", "patient_id", p.ID, "error", err)
	}
}

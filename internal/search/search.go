// Package search finds patients by name or tc id.
package search

import (
	"context"
	"strings"

	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/repo"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Query struct {
	Text string
	// CreatedBy restricts results to one creator; nil searches every record.
	CreatedBy *uint
	Limit     int
}

func (q Query) normalized() Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q
}

// Index is a patient search backend. Index and Delete keep it in sync with the store.
type Index interface {
	Search(ctx context.Context, q Query) ([]models.Patient, error)
	Index(ctx context.Context, p *models.Patient) error
	Delete(ctx context.Context, id uint) error
}

// Store is the patient table an external index is rebuilt from and checked against.
type Store interface {
	ListPatients(ctx context.Context, scope repo.PatientScope) ([]models.Patient, error)
	PatientsByID(ctx context.Context, ids []uint) ([]models.Patient, error)
}

// DBIndex answers searches straight from the patients table.
type DBIndex struct {
	Repo *repo.GormRepo
}

func (d *DBIndex) Search(ctx context.Context, q Query) ([]models.Patient, error) {
	q = q.normalized()
	if q.Text == "" {
		return []models.Patient{}, nil
	}
	return d.Repo.SearchPatients(ctx, q.Text, repo.PatientScope{CreatedBy: q.CreatedBy}, q.Limit)
}

func (d *DBIndex) Index(context.Context, *models.Patient) error { return nil }

func (d *DBIndex) Delete(context.Context, uint) error { return nil }

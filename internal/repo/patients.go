package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/hospital_desk/internal/models"
)

// PatientScope restricts queries to one creator; nil means every record.
type PatientScope struct {
	CreatedBy *uint
}

type PatientUpdate struct {
	FirstName   string
	LastName    string
	PhoneNumber string
	Department  string
	Complaint   string
}

func (s PatientScope) apply(tx *gorm.DB) *gorm.DB {
	if s.CreatedBy != nil {
		return tx.Where("created_by = ?", *s.CreatedBy)
	}
	return tx
}

func newestFirst(tx *gorm.DB) *gorm.DB {
	return tx.Order("created_at DESC").Order("id DESC")
}

func (r *GormRepo) ListPatients(ctx context.Context, scope PatientScope) ([]models.Patient, error) {
	items := make([]models.Patient, 0)
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return newestFirst(scope.apply(tx.Model(&models.Patient{}))).Find(&items).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (r *GormRepo) GetPatient(ctx context.Context, id uint) (*models.Patient, error) {
	var p models.Patient
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.First(&p, id).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// PatientsByID loads the listed patients in no particular order. Unknown ids are skipped.
func (r *GormRepo) PatientsByID(ctx context.Context, ids []uint) ([]models.Patient, error) {
	items := make([]models.Patient, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Where("id IN ?", ids).Find(&items).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (r *GormRepo) PatientTCIDExists(ctx context.Context, tcID string) (bool, error) {
	var count int64
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.Patient{}).Where("tc_id = ?", tcID).Count(&count).Error
	})
	return count > 0, translate(err)
}

func (r *GormRepo) CreatePatient(ctx context.Context, p *models.Patient) error {
	return translate(r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Create(p).Error
	}))
}

// UpdatePatient overwrites every mutable column; tc_id and ownership stay as they are.
func (r *GormRepo) UpdatePatient(ctx context.Context, id uint, upd PatientUpdate) (*models.Patient, error) {
	var p models.Patient
	err := r.Pool.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Patient{}).Where("id = ?", id).Updates(map[string]any{
			"first_name":   upd.FirstName,
			"last_name":    upd.LastName,
			"phone_number": upd.PhoneNumber,
			"department":   upd.Department,
			"complaint":    upd.Complaint,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&p, id).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormRepo) DeletePatient(ctx context.Context, id uint) error {
	return translate(r.Pool.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&models.Patient{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchPatients matches names by substring (case-insensitive) and tc_id by prefix.
func (r *GormRepo) SearchPatients(ctx context.Context, q string, scope PatientScope, limit int) ([]models.Patient, error) {
	escaped := likeEscaper.Replace(strings.ToLower(strings.TrimSpace(q)))
	contains := "%" + escaped + "%"
	prefix := escaped + "%"

	items := make([]models.Patient, 0)
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		query := scope.apply(tx.Model(&models.Patient{})).Where(
			`LOWER(first_name) LIKE ? ESCAPE '\' OR LOWER(last_name) LIKE ? ESCAPE '\' OR tc_id LIKE ? ESCAPE '\'`,
			contains, contains, prefix,
		)
		if limit > 0 {
			query = query.Limit(limit)
		}
		return newestFirst(query).Find(&items).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

package repo

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Skotchmaster/hospital_desk/internal/db"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

const pgUniqueViolation = "23505"

type GormRepo struct {
	Pool *db.Pool
}

func New(pool *db.Pool) *GormRepo {
	return &GormRepo{Pool: pool}
}

// translate maps driver errors onto repo sentinels, keeping the cause.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if IsUniqueViolation(err) {
		return errors.Join(ErrDuplicate, err)
	}
	return err
}

// IsUniqueViolation recognises unique-key errors from postgres and sqlite.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package db

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

var ErrPoolExhausted = errors.New("connection pool exhausted")

// Pool hands out at most size concurrent database sessions. Callers that
// cannot get one within wait fail with ErrPoolExhausted.
type Pool struct {
	db   *gorm.DB
	sem  *semaphore.Weighted
	wait time.Duration
}

func NewPool(db *gorm.DB, size int, wait time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{db: db, sem: semaphore.NewWeighted(int64(size)), wait: wait}
}

func (p *Pool) acquire(ctx context.Context) error {
	acquireCtx := ctx
	if p.wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.wait)
		defer cancel()
	}
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrPoolExhausted
	}
	return nil
}

// Do runs fn with a session bound to ctx and releases the slot when fn returns.
func (p *Pool) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(p.db.WithContext(ctx))
}

func (p *Pool) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return p.Do(ctx, func(tx *gorm.DB) error {
		return tx.Transaction(fn)
	})
}

func (p *Pool) Ping(ctx context.Context) error {
	return p.Do(ctx, func(tx *gorm.DB) error {
		sqlDB, err := tx.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
}

func (p *Pool) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

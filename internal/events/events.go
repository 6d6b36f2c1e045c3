// Package events publishes audit events about logins, patient records and backups.
package events

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

const (
	UserLoggedIn    = "user_logged_in"
	UserLoggedOut   = "user_logged_out"
	UserRegistered  = "user_registered"
	PatientCreated  = "patient_created"
	PatientUpdated  = "patient_updated"
	PatientDeleted  = "patient_deleted"
	BackupCompleted = "backup_completed"
)

type Event struct {
	Type   string         `json:"type"`
	UserID uint           `json:"user_id"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

func New(typ string, userID uint, data map[string]any) Event {
	return Event{Type: typ, UserID: userID, Data: data, At: time.Now().UTC()}
}

// Key partitions events by user.
func (e Event) Key() string {
	return strconv.FormatUint(uint64(e.UserID), 10)
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Emit publishes ev and only logs a failure; audit delivery never fails a request.
func Emit(ctx context.Context, p Publisher, l *slog.Logger, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		l.Warn("audit_publish_failed", "event", ev.Type, "error", err)
	}
}

// LogPublisher writes events to the application log when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Logger.Info("audit_event", "type", ev.Type, "user_id", ev.UserID, "data", ev.Data)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/shared"
)

// QuotaLedger tracks daily API unit consumption against a fixed budget.
//
// Callers follow a reserve / commit / rollback protocol: Reserve sets units
// aside before a remote call, Commit charges them permanently once the call
// succeeds (fully or partially, at the actually-consumed amount), and
// Rollback releases an unused reservation. Committed units persist across
// restarts; reservations are in-memory only and die with the process, which
// is safe because a reservation without a remote call consumed nothing.
type QuotaLedger struct {
	db        *sql.DB
	budget    int
	resetHour int
	reserved  int
	day       string

	// Clock, swappable in tests.
	now func() time.Time
}

// NewQuotaLedger creates a ledger over an already-migrated database.
// resetHour is the UTC hour at which the provider resets daily usage.
func NewQuotaLedger(db *sql.DB, budget, resetHour int) *QuotaLedger {
	if budget <= 0 {
		budget = 10000
	}
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}

	return &QuotaLedger{
		db:        db,
		budget:    budget,
		resetHour: resetHour,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// dayKey maps an instant onto the provider's accounting day. The day rolls
// over at resetHour UTC, so instants before the reset hour belong to the
// previous calendar day's window.
func (l *QuotaLedger) dayKey(t time.Time) string {
	t = t.UTC()
	if t.Hour() < l.resetHour {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format("2006-01-02")
}

// nextReset returns the instant the current accounting day ends.
func (l *QuotaLedger) nextReset(t time.Time) time.Time {
	t = t.UTC()
	reset := time.Date(t.Year(), t.Month(), t.Day(), l.resetHour, 0, 0, 0, time.UTC)
	if !reset.After(t) {
		reset = reset.AddDate(0, 0, 1)
	}
	return reset
}

// rollDay drops stale in-memory reservations when the accounting day has
// advanced since they were taken.
func (l *QuotaLedger) rollDay(day string) {
	if l.day != day {
		l.day = day
		l.reserved = 0
	}
}

func (l *QuotaLedger) committedUnits(day string) (int, error) {
	var units int
	err := l.db.QueryRow("SELECT units FROM quota_usage WHERE day = ?", day).Scan(&units)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota usage: %w", err)
	}
	return units, nil
}

// Reserve sets units aside against today's budget. If committed plus
// already-reserved plus requested units would exceed the budget it returns a
// [shared.QuotaError] and reserves nothing.
func (l *QuotaLedger) Reserve(units int) error {
	if units < 0 {
		return fmt.Errorf("%w: negative reservation", shared.ErrValidation)
	}

	now := l.now()
	day := l.dayKey(now)
	l.rollDay(day)

	committed, err := l.committedUnits(day)
	if err != nil {
		return err
	}

	if committed+l.reserved+units > l.budget {
		return &shared.QuotaError{
			Requested: units,
			Used:      committed + l.reserved,
			Budget:    l.budget,
			ResetAt:   l.nextReset(now),
		}
	}

	l.reserved += units
	return nil
}

// Commit converts a reservation into permanent usage. consumed may be less
// than reserved when a compound command stopped partway; the difference is
// released. consumed beyond the reservation is still recorded, since the
// remote charged it either way.
func (l *QuotaLedger) Commit(reserved, consumed int) error {
	if reserved < 0 || consumed < 0 {
		return fmt.Errorf("%w: negative quota amount", shared.ErrValidation)
	}

	now := l.now()
	day := l.dayKey(now)
	l.rollDay(day)

	l.reserved -= reserved
	if l.reserved < 0 {
		l.reserved = 0
	}

	if consumed == 0 {
		return nil
	}

	query := `
		INSERT INTO quota_usage (day, units) VALUES (?, ?)
		ON CONFLICT(day) DO UPDATE SET units = units + excluded.units
	`
	if _, err := l.db.Exec(query, day, consumed); err != nil {
		return fmt.Errorf("failed to record quota usage: %w", err)
	}

	return nil
}

// Rollback releases a reservation whose remote call never happened.
func (l *QuotaLedger) Rollback(reserved int) {
	day := l.dayKey(l.now())
	l.rollDay(day)

	l.reserved -= reserved
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// Status reports today's usage, including outstanding reservations.
func (l *QuotaLedger) Status() (models.QuotaEntry, error) {
	now := l.now()
	day := l.dayKey(now)
	l.rollDay(day)

	committed, err := l.committedUnits(day)
	if err != nil {
		return models.QuotaEntry{}, err
	}

	return models.QuotaEntry{
		Day:     day,
		Used:    committed + l.reserved,
		Budget:  l.budget,
		ResetAt: l.nextReset(now),
	}, nil
}

// CanAfford reports whether a reservation of the given size would succeed,
// without taking it.
func (l *QuotaLedger) CanAfford(units int) (bool, error) {
	day := l.dayKey(l.now())
	l.rollDay(day)

	committed, err := l.committedUnits(day)
	if err != nil {
		return false, err
	}
	return committed+l.reserved+units <= l.budget, nil
}

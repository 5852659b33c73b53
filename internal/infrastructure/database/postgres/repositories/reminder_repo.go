package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prescripto/prescripto/internal/domain/reminder"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/pkg/errors"
)

// slotRankSQL orders rows by the daily slot sequence.
const slotRankSQL = `CASE slot
	WHEN 'morning' THEN 0
	WHEN 'afternoon' THEN 1
	WHEN 'evening' THEN 2
	ELSE 3 END`

// slotTimeSQL resolves a slot to its default dispatch time of day. Kept in
// step with the slot clock in the domain package.
const slotTimeSQL = `CASE slot
	WHEN 'morning' THEN time '08:00'
	WHEN 'afternoon' THEN time '13:00'
	WHEN 'evening' THEN time '18:00'
	ELSE time '21:00' END`

// ReminderRepository stores reminder events relationally so due-event polling
// stays an indexed query.
type ReminderRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewReminderRepository constructs a ready-to-use repository.
func NewReminderRepository(pool *pgxpool.Pool, log logging.Logger) *ReminderRepository {
	return &ReminderRepository{pool: pool, logger: log}
}

// SaveBatch stores events in one transaction. Duplicate
// (prescription, medicine, date, slot) keys roll the batch back with
// CodeConflict.
func (r *ReminderRepository) SaveBatch(ctx context.Context, events []*reminder.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO reminder_events (
				id, prescription_id, medicine_name, strength,
				slot, event_date, dose_count, notes
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			ev.ID, ev.PrescriptionID, ev.MedicineName, ev.Strength,
			ev.Slot, ev.Date, ev.DoseCount, ev.Notes,
		)
		if isUniqueViolation(err) {
			return errors.Conflict("reminder event already exists").WithDetail(ev.Key())
		}
		if err != nil {
			r.logger.Error("reminder insert failed", logging.String("event_id", ev.ID), logging.Err(err))
			return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert reminder event")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to commit reminder batch")
	}
	return nil
}

// FindByPrescription returns all events for a prescription in schedule order.
func (r *ReminderRepository) FindByPrescription(ctx context.Context, prescriptionID string) ([]*reminder.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, prescription_id, medicine_name, strength,
		       slot, event_date, dose_count, notes, dispatched_at
		FROM reminder_events
		WHERE prescription_id = $1
		ORDER BY event_date, `+slotRankSQL+`, medicine_name`, prescriptionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query reminder events")
	}
	defer rows.Close()
	return scanEvents(rows)
}

// FindDue returns undispatched events whose slot time has passed, oldest
// first. asOf is interpreted on the UTC schedule clock.
func (r *ReminderRepository) FindDue(ctx context.Context, asOf time.Time, limit int) ([]*reminder.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, prescription_id, medicine_name, strength,
		       slot, event_date, dose_count, notes, dispatched_at
		FROM reminder_events
		WHERE dispatched_at IS NULL
		  AND event_date + `+slotTimeSQL+` <= $1
		ORDER BY event_date, `+slotRankSQL+`
		LIMIT $2`, asOf.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query due reminders")
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkDispatched records the dispatch timestamp. Events already dispatched or
// unknown yield CodeReminderNotFound.
func (r *ReminderRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminder_events
		SET dispatched_at = $2
		WHERE id = $1 AND dispatched_at IS NULL`, id, at.UTC())
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to mark reminder dispatched")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeReminderNotFound, "no undispatched reminder with that id").WithDetail(id)
	}
	return nil
}

func scanEvents(rows pgx.Rows) ([]*reminder.Event, error) {
	var out []*reminder.Event
	for rows.Next() {
		var ev reminder.Event
		if err := rows.Scan(
			&ev.ID, &ev.PrescriptionID, &ev.MedicineName, &ev.Strength,
			&ev.Slot, &ev.Date, &ev.DoseCount, &ev.Notes, &ev.DispatchedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan reminder event")
		}
		// DATE columns scan as local-midnight timestamps; the domain stores
		// UTC midnight.
		ev.Date = time.Date(ev.Date.Year(), ev.Date.Month(), ev.Date.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "reminder scan failed")
	}
	return out, nil
}

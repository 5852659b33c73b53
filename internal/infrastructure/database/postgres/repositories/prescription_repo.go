// Package repositories provides the PostgreSQL-backed implementations of the
// domain repository interfaces.
package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/pkg/errors"
)

// uniqueViolation is the postgres error code for duplicate keys.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PrescriptionRepository stores prescriptions with their entries and report
// as JSONB documents. Entries are read back whole; only reminder events need
// relational querying.
type PrescriptionRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPrescriptionRepository constructs a ready-to-use repository.
func NewPrescriptionRepository(pool *pgxpool.Pool, log logging.Logger) *PrescriptionRepository {
	return &PrescriptionRepository{pool: pool, logger: log}
}

// Save stores a prescription. Returns CodeConflict when the ID exists.
func (r *PrescriptionRepository) Save(ctx context.Context, p *prescription.Prescription) error {
	entries, err := json.Marshal(p.Entries)
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to encode entries")
	}
	report, err := json.Marshal(p.Report)
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to encode report")
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO prescriptions (id, entries, report, created_at)
		VALUES ($1, $2, $3, $4)`,
		p.ID, entries, report, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errors.Conflict("prescription already exists").WithDetail(p.ID)
	}
	if err != nil {
		r.logger.Error("prescription insert failed", logging.String("id", p.ID), logging.Err(err))
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert prescription")
	}
	return nil
}

// FindByID loads one prescription or CodePrescriptionNotFound.
func (r *PrescriptionRepository) FindByID(ctx context.Context, id string) (*prescription.Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, entries, report, created_at
		FROM prescriptions
		WHERE id = $1`, id)

	p, err := scanPrescription(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodePrescriptionNotFound, "prescription not found").WithDetail(id)
	}
	if err != nil {
		r.logger.Error("prescription load failed", logging.String("id", id), logging.Err(err))
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to load prescription")
	}
	return p, nil
}

// List returns the most recent prescriptions, newest first.
func (r *PrescriptionRepository) List(ctx context.Context, limit int) ([]*prescription.Prescription, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, entries, report, created_at
		FROM prescriptions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to list prescriptions")
	}
	defer rows.Close()

	var out []*prescription.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan prescription")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "prescription listing failed")
	}
	return out, nil
}

func scanPrescription(row pgx.Row) (*prescription.Prescription, error) {
	var (
		p       prescription.Prescription
		entries []byte
		report  []byte
	)
	if err := row.Scan(&p.ID, &entries, &report, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(entries, &p.Entries); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to decode entries")
	}
	if err := json.Unmarshal(report, &p.Report); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to decode report")
	}
	return &p, nil
}

package prescription

import "context"

// Repository persists processed prescription documents.
type Repository interface {
	// Save stores a prescription with its entries and report. Returns
	// CodeConflict if the ID already exists.
	Save(ctx context.Context, p *Prescription) error

	// FindByID returns the stored prescription or CodePrescriptionNotFound.
	FindByID(ctx context.Context, id string) (*Prescription, error)

	// List returns the most recent prescriptions, newest first.
	List(ctx context.Context, limit int) ([]*Prescription, error)
}

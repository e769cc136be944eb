package storage

import (
	"context"
	"time"

	"github.com/twclinics/groupbook/libs/db"
)

// LifecycleEntry is one recorded status change of an appointment,
// ingested from the lifecycle topics.
type LifecycleEntry struct {
	ID            int64
	AppointmentID int64
	ClinicID      int64
	Status        string
	Payload       []byte
	OccurredAt    time.Time
	RecordedAt    time.Time
}

// LifecycleRepository is the audit trail behind the history endpoint.
type LifecycleRepository struct {
	pool *db.Pool
}

func NewLifecycleRepository(pool *db.Pool) *LifecycleRepository {
	return &LifecycleRepository{pool: pool}
}

func (r *LifecycleRepository) Insert(ctx context.Context, e LifecycleEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_lifecycle (appointment_id, clinic_id, status, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.AppointmentID, e.ClinicID, e.Status, e.Payload, e.OccurredAt)
	return err
}

func (r *LifecycleRepository) ListByAppointment(ctx context.Context, appointmentID int64) ([]LifecycleEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, clinic_id, status, payload, occurred_at, recorded_at
		FROM appointment_lifecycle
		WHERE appointment_id = $1
		ORDER BY occurred_at, id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LifecycleEntry
	for rows.Next() {
		var e LifecycleEntry
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.ClinicID, &e.Status, &e.Payload, &e.OccurredAt, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

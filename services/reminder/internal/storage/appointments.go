package storage

import (
	"context"

	"github.com/twclinics/groupbook/libs/db"
)

// Appointment is the slice of the booking record a reminder needs.
type Appointment struct {
	ID           int64
	ClinicID     int64
	GroupID      string
	RequesterID  string
	CustomerName string
	Date         string
	TimeSlot     string
	Service      string
}

// AppointmentReader queries the shared appointments table.
type AppointmentReader struct {
	pool *db.Pool
}

func NewAppointmentReader(pool *db.Pool) *AppointmentReader {
	return &AppointmentReader{pool: pool}
}

// ListConfirmedForDate returns the confirmed appointments on a date,
// earliest slot first.
func (r *AppointmentReader) ListConfirmedForDate(ctx context.Context, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, group_id, COALESCE(requester_id, ''), customer_name, date, time_slot, service
		FROM appointments
		WHERE status = 'confirmed' AND date = $1
		ORDER BY time_slot, id
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.ClinicID, &a.GroupID, &a.RequesterID, &a.CustomerName, &a.Date, &a.TimeSlot, &a.Service); err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

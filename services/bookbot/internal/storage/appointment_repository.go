package storage

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/twclinics/groupbook/libs/db"
	"github.com/twclinics/groupbook/services/bookbot/internal/model"
	"github.com/twclinics/groupbook/services/bookbot/internal/outbox"
)

const appointmentColumns = `id, clinic_id, group_id, COALESCE(requester_id, ''), customer_name,
	date, time_slot, service, notes, status, created_at, updated_at`

// AppointmentRepository owns the appointments table. Status fields are only
// ever changed through TransitionStatus / the requester-scoped operations,
// which enforce the lifecycle edges. Every lifecycle write stages its
// outbox event in the same transaction as the row change.
type AppointmentRepository struct {
	pool   *db.Pool
	events *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, events *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, events: events}
}

func (r *AppointmentRepository) insertEvent(ctx context.Context, tx pgx.Tx, appt model.Appointment, status model.Status) error {
	if r.events == nil {
		return nil
	}
	evt, err := outbox.AppointmentEvent(appt, status)
	if err != nil {
		return err
	}
	return r.events.Insert(ctx, tx, evt)
}

// Create validates the draft fields, runs the conflict check inside the
// transaction, and inserts the row as pending. The partial unique index on
// active (clinic_id, date, time_slot) backs the check, so two concurrent
// creates cannot both commit: the loser's unique violation is mapped to the
// same ConflictError the pre-check produces.
func (r *AppointmentRepository) Create(ctx context.Context, appt *model.Appointment) (int64, error) {
	if strings.TrimSpace(appt.CustomerName) == "" ||
		strings.TrimSpace(appt.Date) == "" ||
		strings.TrimSpace(appt.TimeSlot) == "" ||
		strings.TrimSpace(appt.Service) == "" {
		return 0, ErrMissingFields
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	conflict, err := r.checkConflictTx(ctx, tx, appt.ClinicID, appt.Date, appt.TimeSlot, 0)
	if err != nil {
		return 0, err
	}
	if conflict != nil {
		return 0, &ConflictError{Existing: *conflict}
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(clinic_id, group_id, requester_id, customer_name, date, time_slot, service, notes, status)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, 'pending')
		RETURNING id
	`, appt.ClinicID, appt.GroupID, appt.RequesterID, appt.CustomerName,
		appt.Date, appt.TimeSlot, appt.Service, appt.Notes).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &ConflictError{Existing: Conflict{}}
		}
		return 0, err
	}

	staged := *appt
	staged.ID = id
	staged.Status = model.StatusPending
	if err := r.insertEvent(ctx, tx, staged, model.StatusPending); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		if isNoRows(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

// TransitionStatus moves an appointment along the lifecycle, rejecting
// edges outside the allowed set. The row is locked for the check so a
// concurrent transition cannot slip between read and write.
func (r *AppointmentRepository) TransitionStatus(ctx context.Context, id int64, to model.Status) (model.Appointment, error) {
	if !model.ValidStatus(to) {
		return model.Appointment{}, ErrInvalidTransition
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if isNoRows(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}

	if !model.CanTransition(appt.Status, to) {
		return model.Appointment{}, ErrInvalidTransition
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, to); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = to
	if err := r.insertEvent(ctx, tx, appt, to); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := r.GetByID(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

// ListPendingByGroup returns the group's pending appointments newest-first;
// equal timestamps fall back to insertion order via the monotonic id.
func (r *AppointmentRepository) ListPendingByGroup(ctx context.Context, groupID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE group_id = $1 AND status = 'pending'
		ORDER BY created_at DESC, id DESC
	`, groupID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListByClinic returns a clinic's appointments for the admin view, newest
// first, optionally filtered by status.
func (r *AppointmentRepository) ListByClinic(ctx context.Context, clinicID int64, status model.Status, limit, offset int) ([]model.Appointment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows pgx.Rows
	var err error
	if status == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE clinic_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3
		`, clinicID, limit, offset)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE clinic_id = $1 AND status = $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3 OFFSET $4
		`, clinicID, status, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// CountByStatus powers the admin stats card.
func (r *AppointmentRepository) CountByStatus(ctx context.Context, clinicID int64) (map[model.Status]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM appointments
		WHERE clinic_id = $1
		GROUP BY status
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.Status]int{}
	for rows.Next() {
		var status model.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListUpcomingByRequester returns a requester's active appointments from
// fromDate onward, soonest first.
func (r *AppointmentRepository) ListUpcomingByRequester(ctx context.Context, requesterID, fromDate string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE requester_id = $1
		  AND date >= $2
		  AND status IN ('pending', 'confirmed')
		ORDER BY date, time_slot
	`, requesterID, fromDate)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// CancelByRequester cancels the appointment only when the requester owns
// it and it is still active. Ownership mismatch and not-found both return
// false so callers render the same "not found" reply either way.
func (r *AppointmentRepository) CancelByRequester(ctx context.Context, id int64, requesterID string) (bool, error) {
	if requesterID == "" {
		return false, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND requester_id = $2 AND status IN ('pending', 'confirmed')
		FOR UPDATE
	`, id, requesterID))
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1
	`, id); err != nil {
		return false, err
	}
	appt.Status = model.StatusCancelled
	if err := r.insertEvent(ctx, tx, appt, model.StatusCancelled); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FieldUpdate carries the partial modifications a requester may apply.
type FieldUpdate struct {
	Date    string
	Time    string
	Service string
}

// ModifyByRequester applies partial field updates after the same ownership
// check as CancelByRequester. A date or time change re-runs the conflict
// check excluding the appointment itself.
func (r *AppointmentRepository) ModifyByRequester(ctx context.Context, id int64, requesterID string, upd FieldUpdate) (bool, error) {
	if requesterID == "" {
		return false, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND requester_id = $2 AND status IN ('pending', 'confirmed')
		FOR UPDATE
	`, id, requesterID))
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}

	newDate := appt.Date
	newTime := appt.TimeSlot
	newService := appt.Service
	if upd.Date != "" {
		newDate = upd.Date
	}
	if upd.Time != "" {
		newTime = upd.Time
	}
	if upd.Service != "" {
		newService = upd.Service
	}

	if newDate != appt.Date || newTime != appt.TimeSlot {
		conflict, err := r.checkConflictTx(ctx, tx, appt.ClinicID, newDate, newTime, id)
		if err != nil {
			return false, err
		}
		if conflict != nil {
			return false, nil
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET date = $2, time_slot = $3, service = $4, updated_at = now()
		WHERE id = $1
	`, id, newDate, newTime, newService); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// CheckConflict scans for an active appointment occupying the same
// (clinic, date, time slot), excluding excludeID when re-checking a
// modification. Returns nil when the slot is free.
func (r *AppointmentRepository) CheckConflict(ctx context.Context, clinicID int64, date, timeSlot string, excludeID int64) (*Conflict, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	conflict, err := r.checkConflictTx(ctx, tx, clinicID, date, timeSlot, excludeID)
	if err != nil {
		return nil, err
	}
	return conflict, tx.Commit(ctx)
}

func (r *AppointmentRepository) checkConflictTx(ctx context.Context, tx pgx.Tx, clinicID int64, date, timeSlot string, excludeID int64) (*Conflict, error) {
	var c Conflict
	err := tx.QueryRow(ctx, `
		SELECT id, customer_name, service
		FROM appointments
		WHERE clinic_id = $1
		  AND date = $2
		  AND time_slot = $3
		  AND status IN ('pending', 'confirmed')
		  AND id <> $4
		LIMIT 1
	`, clinicID, date, timeSlot, excludeID).Scan(&c.ID, &c.CustomerName, &c.Service)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.ClinicID,
		&appt.GroupID,
		&appt.RequesterID,
		&appt.CustomerName,
		&appt.Date,
		&appt.TimeSlot,
		&appt.Service,
		&appt.Notes,
		&appt.Status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	return appt, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

package storage

import (
	"context"

	"github.com/twclinics/groupbook/libs/db"
)

// StaffUser is a clinic staff login for the admin API.
type StaffUser struct {
	ID           string
	ClinicID     int64
	Email        string
	PasswordHash string
	Role         string
}

type StaffRepository struct {
	pool *db.Pool
}

func NewStaffRepository(pool *db.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

func (r *StaffRepository) GetByEmail(ctx context.Context, email string) (StaffUser, error) {
	var u StaffUser
	err := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, email, password_hash, role
		FROM staff_users
		WHERE email = $1
	`, email).Scan(&u.ID, &u.ClinicID, &u.Email, &u.PasswordHash, &u.Role)
	if err != nil {
		if isNoRows(err) {
			return StaffUser{}, ErrNotFound
		}
		return StaffUser{}, err
	}
	return u, nil
}

func (r *StaffRepository) Create(ctx context.Context, u StaffUser) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff_users (id, clinic_id, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.ClinicID, u.Email, u.PasswordHash, u.Role)
	return err
}

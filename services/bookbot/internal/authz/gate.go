package authz

import (
	"context"

	"github.com/twclinics/groupbook/libs/db"
)

// Gate decides whether a chat group may talk to the bot at all. Events
// from unauthorized groups are dropped before any state is touched.
type Gate interface {
	IsAuthorized(ctx context.Context, clinicID int64, groupID string) (bool, error)
}

// PGGate checks the authorized_groups table, written by clinic staff
// through the admin API.
type PGGate struct {
	pool *db.Pool
}

func NewPGGate(pool *db.Pool) *PGGate {
	return &PGGate{pool: pool}
}

func (g *PGGate) IsAuthorized(ctx context.Context, clinicID int64, groupID string) (bool, error) {
	var ok bool
	err := g.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM authorized_groups
			WHERE clinic_id = $1 AND group_id = $2 AND active
		)
	`, clinicID, groupID).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Authorize registers or re-activates a group for a clinic.
func (g *PGGate) Authorize(ctx context.Context, clinicID int64, groupID string) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO authorized_groups (clinic_id, group_id, active)
		VALUES ($1, $2, true)
		ON CONFLICT (clinic_id, group_id) DO UPDATE SET active = true
	`, clinicID, groupID)
	return err
}

// Revoke deactivates a group without losing its history.
func (g *PGGate) Revoke(ctx context.Context, clinicID int64, groupID string) error {
	_, err := g.pool.Exec(ctx, `
		UPDATE authorized_groups
		SET active = false
		WHERE clinic_id = $1 AND group_id = $2
	`, clinicID, groupID)
	return err
}

// AllowAll authorizes every group. Local dev only.
type AllowAll struct{}

func (AllowAll) IsAuthorized(context.Context, int64, string) (bool, error) {
	return true, nil
}

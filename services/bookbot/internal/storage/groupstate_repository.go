package storage

import (
	"context"

	"github.com/twclinics/groupbook/libs/db"
	"github.com/twclinics/groupbook/services/bookbot/internal/model"
)

// GroupStateRepository persists the per-group conversation state. Each
// (group_id, clinic_id) pair holds exactly one row; writes go through a
// single upsert so there is no read-modify-write window at the SQL level.
type GroupStateRepository struct {
	pool *db.Pool
}

func NewGroupStateRepository(pool *db.Pool) *GroupStateRepository {
	return &GroupStateRepository{pool: pool}
}

// Get loads the group's state, returning a fresh idle state when the
// group has never interacted before.
func (r *GroupStateRepository) Get(ctx context.Context, groupID string, clinicID int64) (model.GroupState, error) {
	st := model.GroupState{GroupID: groupID, ClinicID: clinicID, Phase: model.PhaseIdle, Mode: model.ModeSingle}
	err := r.pool.QueryRow(ctx, `
		SELECT mode, phase,
		       COALESCE(draft_service, ''), COALESCE(draft_date, ''),
		       COALESCE(draft_time, ''), COALESCE(draft_name, ''),
		       draft_note, updated_at
		FROM group_states
		WHERE group_id = $1 AND clinic_id = $2
	`, groupID, clinicID).Scan(
		&st.Mode, &st.Phase,
		&st.Draft.Service, &st.Draft.Date,
		&st.Draft.Time, &st.Draft.Name,
		&st.Draft.Note, &st.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return st, nil
		}
		return model.GroupState{}, err
	}
	return st, nil
}

// Upsert writes the state back in one statement: insert on first contact,
// overwrite on conflict.
func (r *GroupStateRepository) Upsert(ctx context.Context, st model.GroupState) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO group_states
			(group_id, clinic_id, mode, phase, draft_service, draft_date, draft_time, draft_name, draft_note, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, now())
		ON CONFLICT (group_id, clinic_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			phase = EXCLUDED.phase,
			draft_service = EXCLUDED.draft_service,
			draft_date = EXCLUDED.draft_date,
			draft_time = EXCLUDED.draft_time,
			draft_name = EXCLUDED.draft_name,
			draft_note = EXCLUDED.draft_note,
			updated_at = now()
	`, st.GroupID, st.ClinicID, st.Mode, st.Phase,
		st.Draft.Service, st.Draft.Date, st.Draft.Time, st.Draft.Name, st.Draft.Note)
	return err
}

package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgxpool.Pool the repository needs. Tests substitute a
// pgxmock pool.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func (r *PgRepository) GetByPractitioner(ctx context.Context, practitionerID uuid.UUID) (*Schedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT weekday, start_minutes, end_minutes, slot_minutes, updated_at
		FROM schedule_rules
		WHERE practitioner_id = $1
		ORDER BY position
	`, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("query schedule rules: %w", err)
	}
	defer rows.Close()

	sched := &Schedule{PractitionerID: practitionerID}
	for rows.Next() {
		var (
			weekday    int
			start, end int
			slot       int
			updatedAt  time.Time
		)
		if err := rows.Scan(&weekday, &start, &end, &slot, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule rule: %w", err)
		}
		sched.Rules = append(sched.Rules, DayRule{
			Weekday:     time.Weekday(weekday),
			Start:       TimeOfDay(start),
			End:         TimeOfDay(end),
			SlotMinutes: slot,
		})
		sched.UpdatedAt = updatedAt
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(sched.Rules) == 0 {
		return nil, ErrScheduleNotFound
	}

	return sched, nil
}

func (r *PgRepository) Replace(ctx context.Context, sched *Schedule) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schedule replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM schedule_rules
		WHERE practitioner_id = $1
	`, sched.PractitionerID); err != nil {
		return fmt.Errorf("clear schedule rules: %w", err)
	}

	for i, rule := range sched.Rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO schedule_rules (practitioner_id, position, weekday, start_minutes, end_minutes, slot_minutes, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, sched.PractitionerID, i, int(rule.Weekday), int(rule.Start), int(rule.End), rule.SlotMinutes); err != nil {
			return fmt.Errorf("insert schedule rule %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schedule replace: %w", err)
	}

	return nil
}

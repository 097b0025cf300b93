package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hakeemcare/clinic-booking/internal/db"
	"github.com/hakeemcare/clinic-booking/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	practitioners, err := seedPractitioners(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	patients, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedBookings(context.Background(), pool, practitioners, patients); err != nil {
		log.Fatalf("seed bookings: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d practitioners with schedules", count)

	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}
	durations := []int{15, 20, 30, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, email, role, created_at, updated_at)
			VALUES ($1, $2, $3, 'practitioner', now(), now())
		`, id, gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return nil, err
		}

		// A handful of working weekdays, 09:00 start, 4-8 hour window.
		days := gofakeit.Number(2, len(weekdays))
		for pos := 0; pos < days; pos++ {
			start := 9 * 60
			end := start + gofakeit.Number(4, 8)*60
			slot := durations[gofakeit.Number(0, len(durations)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO schedule_rules (practitioner_id, position, weekday, start_minutes, end_minutes, slot_minutes, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now())
			`, id, pos, int(weekdays[pos]), start, end, slot)
			if err != nil {
				return nil, err
			}
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("practitioners seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, role, created_at, updated_at)
				VALUES ($1, $2, $3, 'patient', now(), now())
			`, id, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}

			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

func seedBookings(ctx context.Context, pool *pgxpool.Pool, practitioners, patients []uuid.UUID) error {
	log.Println("seeding bookings for the coming week")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	count := 0
	for _, practitionerID := range practitioners {
		for day := 1; day <= 7; day++ {
			if gofakeit.Number(0, 2) != 0 {
				continue
			}

			date := time.Now().UTC().AddDate(0, 0, day).Truncate(24 * time.Hour)
			patientID := patients[gofakeit.Number(0, len(patients)-1)]
			start := schedule.TimeOfDay((9 + gofakeit.Number(0, 5)) * 60)

			// The partial unique index rejects duplicate live slots; the
			// conflict clause just skips them during seeding.
			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, practitioner_id, patient_id, visit_date, start_time, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, 'booked', now(), now())
				ON CONFLICT DO NOTHING
			`, uuid.New(), practitionerID, patientID, date, start.String())
			if err != nil {
				return err
			}
			count++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("bookings seeded: %d", count)
	return nil
}

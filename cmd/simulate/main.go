// simulate hammers one slot with concurrent booking attempts and verifies
// the ledger admits exactly one of them. It runs against a real database so
// the partial unique index, not an in-process lock, is what is being tested.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hakeemcare/clinic-booking/internal/booking"
	"github.com/hakeemcare/clinic-booking/internal/db"
	"github.com/hakeemcare/clinic-booking/internal/schedule"
	"github.com/hakeemcare/clinic-booking/internal/user"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	workers := intEnv("SIM_WORKERS", 25)
	rounds := intEnv("SIM_ROUNDS", 20)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, dsn)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	practitionerID, patientIDs, err := seedActors(context.Background(), pool, workers)
	if err != nil {
		log.Fatalf("seed simulation actors: %v", err)
	}

	svc := booking.NewService(
		booking.NewPgRepository(pool),
		user.NewPgRepository(pool),
		schedule.NewPgRepository(pool),
		nil, // no cache: every check goes to the ledger
		zap.NewNop(),
	)

	log.Printf("simulating %d rounds of %d concurrent bookings per slot", rounds, workers)

	var violations int
	for round := 0; round < rounds; round++ {
		date := time.Now().UTC().AddDate(0, 0, 1+round).Truncate(24 * time.Hour)
		slot := schedule.TimeOfDay(9 * 60)

		successes, conflicts := raceForSlot(svc, practitionerID, patientIDs, date, slot)

		status := "ok"
		if successes != 1 {
			status = "INVARIANT VIOLATED"
			violations++
		}
		log.Printf("round=%d date=%s slot=%s successes=%d conflicts=%d %s",
			round, date.Format(time.DateOnly), slot, successes, conflicts, status)
	}

	if violations > 0 {
		log.Fatalf("%d rounds violated the at-most-one invariant", violations)
	}
	log.Println("simulation complete: at-most-one booking held in every round")
}

func raceForSlot(svc *booking.Service, practitionerID uuid.UUID, patientIDs []uuid.UUID, date time.Time, slot schedule.TimeOfDay) (successes, conflicts int64) {
	var wg sync.WaitGroup

	for _, patientID := range patientIDs {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err := svc.CreateBooking(ctx, practitionerID, patientID, date, slot)
			switch {
			case err == nil:
				atomic.AddInt64(&successes, 1)
			case errors.Is(err, booking.ErrSlotUnavailable):
				atomic.AddInt64(&conflicts, 1)
			default:
				log.Printf("unexpected booking error: %v", err)
			}
		}(patientID)
	}

	wg.Wait()
	return successes, conflicts
}

func seedActors(ctx context.Context, pool *pgxpool.Pool, patients int) (uuid.UUID, []uuid.UUID, error) {
	practitionerID := uuid.New()
	if _, err := pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, 'practitioner', now(), now())
	`, practitionerID, gofakeit.Name(), gofakeit.Email()); err != nil {
		return uuid.Nil, nil, err
	}

	// One all-week rule so every simulated date has a valid 09:00 slot.
	for day := 0; day < 7; day++ {
		if _, err := pool.Exec(ctx, `
			INSERT INTO schedule_rules (practitioner_id, position, weekday, start_minutes, end_minutes, slot_minutes, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, practitionerID, day, day, 9*60, 17*60, 30); err != nil {
			return uuid.Nil, nil, err
		}
	}

	ids := make([]uuid.UUID, 0, patients)
	for i := 0; i < patients; i++ {
		id := uuid.New()
		if _, err := pool.Exec(ctx, `
			INSERT INTO users (id, name, email, role, created_at, updated_at)
			VALUES ($1, $2, $3, 'patient', now(), now())
		`, id, gofakeit.Name(), gofakeit.Email()); err != nil {
			return uuid.Nil, nil, err
		}
		ids = append(ids, id)
	}

	return practitionerID, ids, nil
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

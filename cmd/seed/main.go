package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/db"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

// Seeds the clinician directory and, optionally, a batch of unknown
// records for the reconcile worker to pick up. Enrolled hrefs point at
// SEED_BOOKING_URL, so only enable them against a test booking site.
func main() {
	_ = godotenv.Load()
	logger := logging.New(getEnv("LOG_LEVEL", "info")).With("service", "seed")
	logger.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.WithApplicationName("seed"))
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	clinicianCount := getInt("SEED_CLINICIANS", 25)
	enrollments := getInt("SEED_ENROLLMENTS", 0)
	bookingURL := getEnv("SEED_BOOKING_URL", "https://booking.example.com/appointments/request")

	ids, err := seedClinicians(context.Background(), pool, clinicianCount, logger)
	if err != nil {
		logger.Error("seed clinicians", "error", err)
		os.Exit(1)
	}
	if err := seedEnrollments(context.Background(), pool, ids, bookingURL, enrollments, logger); err != nil {
		logger.Error("seed enrollments", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete")
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, count int, logger *logging.Logger) ([]string, error) {
	logger.Info("seeding clinicians", "count", count)

	titles := []string{"Dr.", "Dr.", "LCSW", "LMFT", "LPC", "PsyD"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	repo := appointment.NewPgRepository(tx)
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := strconv.Itoa(1000 + i)
		title := titles[gofakeit.Number(0, len(titles)-1)]
		name := gofakeit.Name()
		if title == "Dr." {
			name = title + " " + name
		} else {
			name = name + ", " + title
		}

		if err := repo.UpsertClinician(ctx, id, name); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info("clinicians seeded")
	return ids, nil
}

func seedEnrollments(ctx context.Context, pool *pgxpool.Pool, clinicianIDs []string, bookingURL string, count int, logger *logging.Logger) error {
	if count <= 0 || len(clinicianIDs) == 0 {
		return nil
	}
	logger.Info("enrolling demo records", "count", count)

	repo := appointment.NewPgRepository(pool)
	svc := appointment.NewService(repo, repo, logger)

	comments := []string{
		"",
		"Prefer telehealth if available.",
		"First visit, referred by primary care.",
		"Returning patient.",
	}
	now := time.Now()

	for i := 0; i < count; i++ {
		slot := now.AddDate(0, 0, gofakeit.Number(2, 30))
		q := url.Values{}
		q.Set("clinicianId", clinicianIDs[gofakeit.Number(0, len(clinicianIDs)-1)])
		q.Set("date", slot.Format("2006-01-02"))
		q.Set("time", fmt.Sprintf("%02d:%02d", gofakeit.Number(8, 17), 30*gofakeit.Number(0, 1)))
		href := bookingURL + "?" + q.Encode()

		dob := gofakeit.DateRange(now.AddDate(-80, 0, 0), now.AddDate(-18, 0, 0))
		_, err := svc.Upsert(ctx, appointment.UpsertInput{
			Href: href,
			Patient: appointment.PatientData{
				FirstName:   gofakeit.FirstName(),
				LastName:    gofakeit.LastName(),
				DateOfBirth: dob.Format("2006-01-02"),
				Email:       gofakeit.Email(),
				Phone:       gofakeit.Phone(),
				Comments:    comments[gofakeit.Number(0, len(comments)-1)],
			},
		})
		if err != nil {
			return err
		}
	}

	logger.Info("demo records enrolled", "count", count)
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

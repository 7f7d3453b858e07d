package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/config"
	"github.com/hackgods/telehealth-provider-scheduling/internal/db"
	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
	"github.com/hackgods/telehealth-provider-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-provider-scheduling/internal/redis"
	"github.com/hackgods/telehealth-provider-scheduling/internal/scheduling"
	"github.com/hackgods/telehealth-provider-scheduling/internal/session"
)

type provider struct {
	ID    uuid.UUID
	Name  string
	Email string
}

func main() {
	providerCount := flag.Int("providers", 5, "number of providers to create")
	days := flag.Int("days", 14, "number of days, starting today, to fill with slots")
	slotsPerDay := flag.Int("slots-per-day", 6, "slots per provider per working day")
	bookRatio := flag.Float64("book-ratio", 0.3, "share of slots booked by fake patients")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load error: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("seed starting")

	ctx := context.Background()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, db.DefaultPoolOptions)
	cancel()
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	faker := gofakeit.New(0)

	providers, err := seedProviders(ctx, pool, faker, *providerCount)
	if err != nil {
		logger.Fatal("seed providers", zap.Error(err))
	}
	logger.Info("providers seeded", zap.Int("count", len(providers)))

	svc := scheduling.NewService(
		scheduling.NewPgRepository(pool),
		redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, logger),
		notify.NewLogNotifier(logger),
		scheduling.WithLogger(logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))),
		scheduling.WithLocation(cfg.Location),
	)

	specs, err := svc.Providers.ListSpecializations(ctx)
	if err != nil {
		logger.Fatal("list specializations", zap.Error(err))
	}
	for i, p := range providers {
		if _, err := svc.Providers.UpdateProfile(ctx, p.ID, fakeProfile(faker)); err != nil {
			logger.Fatal("update profile", zap.Stringer("provider_id", p.ID), zap.Error(err))
		}
		if len(specs) == 0 {
			continue
		}
		_, err := svc.Providers.SubmitLicense(ctx, p.ID, scheduling.LicenseSubmission{
			LicenseNumber:    fmt.Sprintf("%s/%05d/%d", faker.StateAbr(), 10000+i, faker.Number(1990, 2024)),
			SpecializationID: specs[faker.Number(0, len(specs)-1)].ID,
		})
		if err != nil {
			logger.Warn("submit license", zap.Stringer("provider_id", p.ID), zap.Error(err))
		}
	}

	today := scheduling.CivilDate(time.Now().In(cfg.Location))
	var slotsCreated, booked int
	for _, p := range providers {
		for d := 0; d < *days; d++ {
			date := today.AddDate(0, 0, d)
			if date.Weekday() == time.Sunday {
				continue
			}

			for _, at := range pickTimes(faker, *slotsPerDay) {
				slot, err := svc.Calendar.AddSlot(ctx, p.ID, scheduling.FormatDate(date), at.String())
				if errors.Is(err, scheduling.ErrConflict) {
					continue
				}
				if err != nil {
					logger.Fatal("add slot", zap.Error(err))
				}
				slotsCreated++

				if faker.Float64Range(0, 1) >= *bookRatio {
					continue
				}
				_, err = svc.Registry.BookSlot(ctx, p.ID, slot.ID, scheduling.BookingRequest{
					PatientName: faker.Name(),
					Email:       faker.Email(),
					Video:       faker.Bool(),
				})
				if err != nil {
					logger.Warn("book slot", zap.Stringer("slot_id", slot.ID), zap.Error(err))
					continue
				}
				booked++
			}
		}
	}
	logger.Info("slots seeded", zap.Int("slots", slotsCreated), zap.Int("booked", booked))

	// development token for the first provider, for use with curl or cmd/simulate
	sessions := session.NewManager(cfg.SessionSecret, cfg.SessionTTL, session.NewRedisRevocations(rdb))
	token, s, err := sessions.Issue(providers[0].ID, providers[0].Name, providers[0].Email)
	if err != nil {
		logger.Fatal("issue session", zap.Error(err))
	}
	fmt.Printf("provider_id=%s\nexpires_at=%s\ntoken=%s\n", s.ProviderID, s.ExpiresAt.Format(time.RFC3339), token)

	logger.Info("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]provider, error) {
	if count < 1 {
		return nil, errors.New("at least one provider is required")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	providers := make([]provider, 0, count)
	for i := 0; i < count; i++ {
		p := provider{
			ID:    uuid.New(),
			Name:  "Dr. " + faker.Name(),
			Email: fmt.Sprintf("%s.%d@%s", faker.Username(), i, faker.DomainName()),
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, p.ID, p.Name, p.Email)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return providers, nil
}

func fakeProfile(faker *gofakeit.Faker) scheduling.ProfileUpdate {
	phone := faker.Numerify("##########")
	about := faker.Sentence(20)
	experience := faker.Number(1, 35)
	qualification := faker.RandomString([]string{"MBBS", "MBBS, MD", "MBBS, MS", "BDS", "MD, DM"})
	gender := faker.RandomString([]string{"Male", "Female", "Other"})

	return scheduling.ProfileUpdate{
		Phone:           &phone,
		About:           &about,
		FieldExperience: &experience,
		Qualification:   &qualification,
		Gender:          &gender,
	}
}

// pickTimes returns n distinct half-hour times between 08:00 AM and 05:30 PM.
func pickTimes(faker *gofakeit.Faker, n int) []scheduling.ClockTime {
	const first, last = 8 * 60, 17*60 + 30

	seen := map[scheduling.ClockTime]bool{}
	var out []scheduling.ClockTime
	for len(out) < n && len(seen) < (last-first)/30+1 {
		at := scheduling.ClockTime(first + 30*faker.Number(0, (last-first)/30))
		if seen[at] {
			continue
		}
		seen[at] = true
		out = append(out, at)
	}
	return out
}

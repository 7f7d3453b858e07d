package main

import (
	"flag"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/db"
	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
)

func main() {
	force := flag.Int("force", -1, "force the recorded migration version and exit")
	flag.Parse()

	logger, err := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	if err := db.Migrate(dsn, *force); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	if *force >= 0 {
		logger.Info("forced migration version", zap.Int("version", *force))
		return
	}
	logger.Info("migrations complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

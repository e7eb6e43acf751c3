// Command migrate creates or updates the database schema and makes sure an
// admin exists. It is safe to run repeatedly.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/capitalize-ai/localchat/internal/config"
	"github.com/capitalize-ai/localchat/internal/store"
	"github.com/capitalize-ai/localchat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithFormat(cfg.Logging.Level, logger.Format(cfg.Logging.Format))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	if err := st.Migrate(); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	admin, approved, err := st.BootstrapAdmin(context.Background())
	if err != nil {
		log.Fatal("failed to bootstrap admin", zap.Error(err))
	}

	if admin == nil {
		log.Info("migration complete, no users yet")
		return
	}
	log.Info("migration complete",
		zap.String("admin", admin.Username),
		zap.Int64("approved_users", approved),
	)
}

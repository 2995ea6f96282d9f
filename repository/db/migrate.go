package db

import (
	"errors"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration applies all pending schema migrations from migratePath.
func Migration(dbStr, migratePath string) error {
	if dbStr == "" {
		return errors.New("database connection string is required")
	}
	if migratePath == "" {
		return errors.New("migrations path is required")
	}

	m, err := migrate.New("file://"+migratePath, dbStr)
	if err != nil {
		log.Println("[ERROR] Failed to initialize migrations:", err)
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Println("[WARN] Failed to close migration handles:", srcErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Println("[ERROR] Failed to apply migrations:", err)
		return err
	}
	return nil
}

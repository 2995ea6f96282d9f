package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andriy-shtumpf/todo-test/internal/auth"
	"github.com/andriy-shtumpf/todo-test/internal/server"
	db "github.com/andriy-shtumpf/todo-test/repository/db"
	inmemory "github.com/andriy-shtumpf/todo-test/repository/inmemory"
)

func main() {
	log.Println("Starting task service...")

	cfg := server.ReadConfig()

	if err := db.Migration(cfg.DBStr, cfg.MigratePath); err != nil {
		log.Println("[WARN] Failed to apply migrations:", err)
	} else {
		log.Println("[SUCCESS] Migrations applied")
	}

	var repo server.TaskRepository
	dbStorage, err := db.NewStorage(cfg.DBStr)
	if err != nil {
		log.Println("[WARN] Database unreachable, falling back to in-memory storage:", err)
		repo = inmemory.NewStorage()
	} else {
		defer dbStorage.Close()
		repo = dbStorage
	}

	if cfg.ProjectID == "" {
		log.Println("[WARN] FIREBASE_PROJECT_ID is not set; token verification will reject all requests")
	}
	verifier := auth.NewTokenVerifier(cfg.ProjectID)

	api := server.NewTaskAPI(repo, verifier, cfg)
	if api == nil {
		log.Fatal("[ERROR] Failed to initialize API")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Service listening on %s:%d", cfg.Addr, cfg.Port)
		if err := api.Start(); err != nil {
			serverErr <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Printf("[INFO] Received signal %v, starting graceful shutdown...", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Printf("[ERROR] Graceful shutdown failed: %v", err)
		} else {
			log.Println("[SUCCESS] Graceful shutdown complete")
		}

	case err := <-serverErr:
		log.Printf("[ERROR] Server error: %v", err)
	}

	log.Println("Service stopped")
}

// Command server runs the anime tracker API. Configuration comes from the
// environment:
//
//	PORT       listen port (default 8080)
//	DB_PATH    SQLite database file (default data/anitrack.db)
//	DATA_DIR   root for secrets and avatar files (default data)
//	JWT_SECRET signing secret for access tokens (required, >= 16 chars)
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jsedeno/anitrack/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	dataDir := "data"
	if envDir := os.Getenv("DATA_DIR"); envDir != "" {
		dataDir = envDir
	}

	dbPath := filepath.Join(dataDir, "anitrack.db")
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}

	for _, dir := range []string{dataDir, filepath.Dir(dbPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("failed to create directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// Generate one with: openssl rand -hex 32
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	srv, err := server.New(server.Config{
		Port:      port,
		DBPath:    dbPath,
		DataDir:   dataDir,
		JWTSecret: jwtSecret,
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

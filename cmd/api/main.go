package main

import (
	"os"

	"github.com/yigit/courseregistry/internal/pkg/logger"
	"github.com/yigit/courseregistry/internal/server"
)

// @title Course Registry API
// @version 1.0
// @description Course records over a key-value store with an index set for enumeration

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1
// @schemes http

func main() {
	srv, err := server.NewServer()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize server")
		os.Exit(1)
	}

	// Run blocks until a shutdown signal is received
	if err := srv.Run(); err != nil {
		logger.Error().Err(err).Msg("Server execution failed or shutdown encountered errors")
		os.Exit(1)
	}

	logger.Info().Msg("Application finished gracefully.")
}

package config

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/allocator/internal/state"
)

// Storage backends selectable with ALLOCATOR_STORAGE.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Storage is StoragePostgres or StorageMemory. The DB settings are only read for postgres.
	Storage string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// WebPort is the port of the dashboard and JSON API.
	WebPort string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	Storage = getEnvOrDefault("ALLOCATOR_STORAGE", StoragePostgres)
	switch Storage {
	case StorageMemory:
		DBHost, DBPort, DBUser, DBPassword, DBName, DBSSLMode = "", 0, "", "", "", ""
		log.Debug().Str("Storage", Storage).Str("WebPort", WebPort).Msg("Endpoint configuration loaded successfully.")
		return nil
	case StoragePostgres:
	default:
		return errors.New("environment variable ALLOCATOR_STORAGE must be 'postgres' or 'memory', got: " + Storage)
	}

	var err error

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}

	port, err := getEnvAsUint64("DB_PORT")
	if err != nil {
		return err
	}
	if port == 0 || port > 65535 {
		return errors.New("environment variable DB_PORT must be a valid port, got: " + strconv.FormatUint(port, 10))
	}
	DBPort = int(port)

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	log.Debug().
		Str("Storage", Storage).
		Str("DBHost", DBHost).
		Int("DBPort", DBPort).
		Str("DBName", DBName).
		Str("WebPort", WebPort).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// DatabaseConfig returns the loaded database settings.
func DatabaseConfig() state.DBConfig {
	return state.DBConfig{
		Host:     DBHost,
		Port:     DBPort,
		User:     DBUser,
		Password: DBPassword,
		DBName:   DBName,
		SSLMode:  DBSSLMode,
	}
}

package main

import (
	"errors"
	"os"
	"strconv"

	"github.com/elys-network/allocator/internal/state"
)

// dbConfigFromEnv reads the DB_* variables, defaulting host, port and sslmode.
func dbConfigFromEnv() (state.DBConfig, error) {
	cfg := state.DBConfig{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     5432,
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}
	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return state.DBConfig{}, errors.New("DB_PORT must be a valid port, got: " + portStr)
		}
		cfg.Port = port
	}
	if cfg.User == "" {
		return state.DBConfig{}, errors.New("DB_USER environment variable not set")
	}
	if cfg.DBName == "" {
		return state.DBConfig{}, errors.New("DB_NAME environment variable not set")
	}
	return cfg, nil
}

// parseTickFlag reads the -reset-tick value. set is false when the flag was left empty.
func parseTickFlag(s string) (tick uint64, set bool, err error) {
	if s == "" {
		return 0, false, nil
	}
	tick, err = strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, errors.New("-reset-tick must be a non-negative tick, got: " + s)
	}
	return tick, true, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/state"
)

func main() {
	prune := flag.Int("prune", 0, "keep only the newest N vault records instead of dropping every table")
	resetTick := flag.String("reset-tick", "", "set the tick counter to this value instead of dropping every table")
	flag.Parse()

	tick, tickSet, err := parseTickFlag(*resetTick)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid flags")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	dbCfg, err := dbConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	if tickSet {
		if err := state.ResetTick(context.Background(), tick); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset tick counter")
		}
		log.Info().Uint64("tick", tick).Msg("Tick counter reset!")
		return
	}

	if *prune > 0 {
		deleted, err := state.PruneVaultRecords(context.Background(), *prune)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to prune vault records")
		}
		log.Info().Int64("deleted", deleted).Int("kept", *prune).Msg("Prune complete!")
		return
	}

	log.Info().Msg("Connected to database. Attempting to drop all tables...")
	if err := state.DropSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database schema successfully recreated")

	log.Info().Msg("Database reset complete!")
}

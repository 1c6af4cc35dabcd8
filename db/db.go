package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const dbFileName = "cheerily.db"

var (
	// Db is the global database connection object
	Db *gorm.DB
	// Path is the path to the SQLite database file, resolved by ConfigurePath
	Path = filepath.Join(os.Getenv("HOME"), ".cheerily", dbFileName)
)

// ConfigurePath resolves the database location from CHEERILY_HOME, then
// XDG_DATA_HOME, then the user's home directory.
func ConfigurePath() error {
	if home := os.Getenv("CHEERILY_HOME"); home != "" {
		Path = filepath.Join(home, dbFileName)
		return nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		Path = filepath.Join(xdg, "cheerily", dbFileName)
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}
	Path = filepath.Join(home, ".cheerily", dbFileName)
	return nil
}

// InitDB initializes the database by creating the necessary directory,
// opening the database connection, migrating tables, and configuring the logger.
func InitDB() error {
	if err := createDBDirectory(); err != nil {
		return err
	}

	conn, err := Open(Path)
	if err != nil {
		return err
	}
	Db = conn

	log.Info().Str("path", Path).Msg("Database initialized successfully")
	return nil
}

// Open opens the SQLite database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open database")
		return nil, err
	}
	// SQLite allows one writer; funnel the pipeline and its background refill
	// through a single connection. This also keeps ":memory:" databases alive.
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := migrateTables(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// GetDB returns the global database handle.
func GetDB() *gorm.DB {
	return Db
}

// createDBDirectory creates the directory for the database file if it does not exist.
func createDBDirectory() error {
	dir := filepath.Dir(Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error().Err(err).Msg("Failed to create database directory")
			return err
		}
	}
	return nil
}

// migrateTables performs automatic migration for the token, cheer, saved cheer and cursor tables.
func migrateTables(conn *gorm.DB) error {
	if err := conn.AutoMigrate(&Token{}, &Cheer{}, &SavedCheer{}, &FeedCursor{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate database")
		return err
	}
	return nil
}

// newGormLogger follows the global zerolog level: silent when logging is disabled.
func newGormLogger() logger.Interface {
	if zerolog.GlobalLevel() == zerolog.Disabled {
		return logger.Default.LogMode(logger.Silent)
	}
	return logger.Default.LogMode(logger.Info)
}

// CloseDB closes the database connection.
func CloseDB() error {
	if Db == nil {
		return nil
	}
	sqlDB, err := Db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}

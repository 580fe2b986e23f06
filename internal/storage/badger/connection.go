package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aptus/internal/common"
)

// DB manages the Badger database connection
type DB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.DatabaseConfig
}

// NewDB opens the Badger database at the configured path
func NewDB(logger arbor.ILogger, config *common.DatabaseConfig) (*DB, error) {
	// If reset_on_startup is enabled, delete the existing database
	if config.ResetOnStartup {
		if _, err := os.Stat(config.URL); err == nil {
			logger.Debug().Str("path", config.URL).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(config.URL); err != nil {
				logger.Warn().Err(err).Str("path", config.URL).Msg("Failed to delete database directory")
			}
		}
	}

	dir := filepath.Dir(config.URL)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", config.URL).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Dir = config.URL
	options.ValueDir = config.URL
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", config.URL).Msg("Badger database initialized")

	return &DB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// Store returns the underlying badgerhold store
func (b *DB) Store() *badgerhold.Store {
	return b.store
}

// Close closes the database connection
func (b *DB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

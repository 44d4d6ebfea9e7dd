package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/common"
	"github.com/ternarybob/cavitas/internal/interfaces"
)

// Manager owns the Badger database and the storages built on it
type Manager struct {
	db     *BadgerDB
	events interfaces.EventStorage
	logger arbor.ILogger
}

// NewManager opens the database and creates its storages
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		events: NewEventStorage(db, logger),
		logger: logger,
	}

	logger.Debug().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// EventStorage returns the notification history storage
func (m *Manager) EventStorage() interfaces.EventStorage {
	return m.events
}

// Close closes the database
func (m *Manager) Close() error {
	return m.db.Close()
}

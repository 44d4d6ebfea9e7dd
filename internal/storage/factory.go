package storage

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/common"
	"github.com/ternarybob/cavitas/internal/storage/badger"
	"github.com/ternarybob/cavitas/internal/storage/filesystem"
)

// Storages groups the two persistence layers: job records on the
// filesystem and notification history in Badger.
type Storages struct {
	Jobs   *filesystem.JobStore
	Badger *badger.Manager
}

// NewStorages opens every storage described by config
func NewStorages(logger arbor.ILogger, config *common.Config) (*Storages, error) {
	manager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	return &Storages{
		Jobs:   filesystem.NewJobStore(config.Store.Dir, logger),
		Badger: manager,
	}, nil
}

// Close releases the storages
func (s *Storages) Close() error {
	if s.Badger != nil {
		return s.Badger.Close()
	}
	return nil
}

package postgres

import (
	"github.com/release-engineering/greenwave-sub000/config"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory opens the ResultsDB and WaiverDB databases and creates
// the readers on top of them
type RepositoryFactory struct {
	resultsDB *DB
	waiversDB *DB
	logger    *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg config.StoresConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	resultsDB, err := NewDB(cfg.ResultsDatabase, logger)
	if err != nil {
		return nil, err
	}

	waiversDB, err := NewDB(cfg.WaiversDatabase, logger)
	if err != nil {
		resultsDB.Close()
		return nil, err
	}

	return &RepositoryFactory{resultsDB: resultsDB, waiversDB: waiversDB, logger: logger}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Results: NewResultsRepository(f.resultsDB, f.logger),
		Waivers: NewWaiversRepository(f.waiversDB, f.logger),
	}
}

// Close closes the database connections
func (f *RepositoryFactory) Close() error {
	_ = f.waiversDB.Close()
	return f.resultsDB.Close()
}

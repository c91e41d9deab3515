package repository

import (
	"sync"

	"gorm.io/gorm"

	"github.com/outflo/outflo/internal/pkg/metrics/counter"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db       *gorm.DB
	recorder *counter.Recorder
	repos    *Repositories
	once     sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB, recorder *counter.Recorder) *Factory {
	return &Factory{
		db:       db,
		recorder: recorder,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db, f.recorder)
	})
	return f.repos
}

// GetReceiptRepository returns the receipt repository instance
func (f *Factory) GetReceiptRepository() ReceiptRepository {
	return f.GetRepositories().Receipt
}

// GetAliasRepository returns the alias repository instance
func (f *Factory) GetAliasRepository() AliasRepository {
	return f.GetRepositories().Alias
}

// GetEventRepository returns the inbound event repository instance
func (f *Factory) GetEventRepository() EventRepository {
	return f.GetRepositories().Event
}

// GetStatsRepository returns the stats repository instance
func (f *Factory) GetStatsRepository() StatsRepository {
	return f.GetRepositories().Stats
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB, recorder *counter.Recorder) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db, recorder)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}

package repository

import (
	"github.com/sirupsen/logrus"
)

const (
	DefaultIDColumn         = "id"
	DefaultSoftDeleteColumn = "isDeleted"
)

type settings struct {
	entityName       string
	idColumn         string
	softDeleteColumn string
	convention       TableConvention
	dispatcher       Dispatcher
	cache            ResultCache
	hydrator         any
	logger           logrus.FieldLogger
}

func defaultSettings() settings {
	return settings{
		idColumn:         DefaultIDColumn,
		softDeleteColumn: DefaultSoftDeleteColumn,
		convention:       EntityConvention{},
		dispatcher:       nopDispatcher{},
		logger:           logrus.StandardLogger(),
	}
}

// Option configures a repository at construction
type Option func(*settings)

// WithEntityName overrides the entity name used in event names and logs.
// It defaults to the Go type name.
func WithEntityName(name string) Option {
	return func(s *settings) { s.entityName = name }
}

// WithIDColumn sets the primary key column, "id" by default
func WithIDColumn(column string) Option {
	return func(s *settings) { s.idColumn = column }
}

// WithSoftDeleteColumn sets the column Delete flags, "isDeleted" by default
func WithSoftDeleteColumn(column string) Option {
	return func(s *settings) { s.softDeleteColumn = column }
}

// WithTableConvention sets how the table name is derived from the entity
func WithTableConvention(convention TableConvention) Option {
	return func(s *settings) { s.convention = convention }
}

// WithDispatcher sets the receiver of lifecycle events. A nil dispatcher is ignored.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(s *settings) {
		if dispatcher != nil {
			s.dispatcher = dispatcher
		}
	}
}

// WithResultCache enables the RestoreAllFromCache/StoreAllInCache helpers
func WithResultCache(cache ResultCache) Option {
	return func(s *settings) { s.cache = cache }
}

// WithHydrator replaces the default DataHydrator. The hydrator's entity type
// must match the repository's.
func WithHydrator[T Entity](hydrator Hydrator[T]) Option {
	return func(s *settings) { s.hydrator = hydrator }
}

// WithLogger sets the logger; a nil logger keeps the logrus standard logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type readSettings struct {
	bypassIdentity bool
}

// ReadOption tunes a single Find or FindByIDs call
type ReadOption func(*readSettings)

// BypassIdentityCache forces a database read even when the identity map
// holds the entity. The fresh instance replaces the cached one.
func BypassIdentityCache() ReadOption {
	return func(s *readSettings) { s.bypassIdentity = true }
}

func applyReadOptions(opts []ReadOption) readSettings {
	var s readSettings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

package repository

import (
	"context"
	"time"

	"github.com/ammar0144/rowrepo/pkg/db"
)

// Executor runs the statements a repository needs against one store.
type Executor interface {
	Select(ctx context.Context, q db.SelectQuery) ([]db.Row, error)
	Columns(ctx context.Context, table string) (db.Columns, error)
	Insert(ctx context.Context, table string, row db.Row) (int64, error)
	Update(ctx context.Context, table string, row db.Row, key db.Criteria) (int64, error)
	Delete(ctx context.Context, table string, key db.Criteria) (int64, error)

	// BatchUpsert writes rows atomically, each row touching only the columns
	// it carries. Rows whose key column is nil are inserted; the store must
	// hand them contiguous ids starting at FirstID, in input order.
	BatchUpsert(ctx context.Context, table string, key string, rows []db.Row) (db.UpsertResult, error)
	QuoteIdentifier(name string) string
}

// ResultCache stores raw rows under arbitrary keys with a TTL.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]db.Row, bool, error)
	Set(ctx context.Context, key string, rows []db.Row, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Repository is the full operation set of an entity repository.
type Repository[T Entity] interface {
	Find(ctx context.Context, id int64, opts ...ReadOption) (T, bool, error)
	FindByIDs(ctx context.Context, ids []int64, opts ...ReadOption) ([]T, error)
	FindAll(ctx context.Context) ([]T, error)
	FindBy(ctx context.Context, criteria db.Criteria, orderBy []db.Order, limit, offset int) ([]T, error)
	FindOneBy(ctx context.Context, criteria db.Criteria) (T, bool, error)

	Save(ctx context.Context, entity T) error
	SaveAll(ctx context.Context, entities []T) (int64, error)
	Delete(ctx context.Context, entity T) error
	DeleteAll(ctx context.Context, entities []T) (int64, error)

	RestoreAllFromCache(ctx context.Context, key string) ([]T, bool, error)
	StoreAllInCache(ctx context.Context, entities []T, key string, ttl time.Duration) error
	ForgetCached(ctx context.Context, key string) error
	CacheKey(operation string, args ...any) string

	TableName() string
	EntityName() string
}

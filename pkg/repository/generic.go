package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/ammar0144/rowrepo/pkg/db"
)

const (
	cacheKeyPrefix     = "rowrepo"
	cacheKeySeparator  = ":"
	cacheKeyHashLength = 12
)

// ObjectRepository maps entities of type T to rows of one table.
//
// Every instance loaded or saved through the repository is kept in an
// identity map, so repeated lookups of the same id return the same pointer.
// A repository is not safe for concurrent use.
type ObjectRepository[T Entity] struct {
	executor   Executor
	dispatcher Dispatcher
	cache      ResultCache
	hydrator   Hydrator[T]
	identity   *IdentityMap[T]
	log        logrus.FieldLogger

	entityName       string
	tableName        string
	idColumn         string
	softDeleteColumn string

	columns db.Columns
}

// New creates a repository for T. The factory supplies empty instances for
// hydration and a sample the table convention resolves the table from.
func New[T Entity](executor Executor, factory Factory[T], opts ...Option) (*ObjectRepository[T], error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	entityName := s.entityName
	if entityName == "" {
		entityName = entityTypeName[T]()
	}

	if executor == nil {
		return nil, &ConfigurationError{Entity: entityName, Reason: "executor is nil"}
	}
	if factory == nil {
		return nil, &ConfigurationError{Entity: entityName, Reason: "factory is nil"}
	}
	if s.idColumn == "" {
		return nil, &ConfigurationError{Entity: entityName, Reason: "id column is empty"}
	}

	var sample T
	if r, ok := factory.(resolver[T]); ok {
		resolved, err := r.Resolve()
		if err != nil {
			return nil, &ConfigurationError{Entity: entityName, Reason: fmt.Sprintf("factory failed: %v", err)}
		}
		sample = resolved
	} else {
		sample = factory.Create()
	}
	if isNilEntity(sample) {
		return nil, &ConfigurationError{Entity: entityName, Reason: "factory returned a nil entity"}
	}

	tableName, err := s.convention.TableNameFor(entityName, sample)
	if err != nil {
		if IsConfigurationError(err) {
			return nil, err
		}
		return nil, &ConfigurationError{Entity: entityName, Reason: err.Error()}
	}
	if tableName == "" {
		return nil, &ConfigurationError{Entity: entityName, Reason: "table convention returned an empty name"}
	}

	var hydrator Hydrator[T]
	switch h := s.hydrator.(type) {
	case nil:
		hydrator = NewDataHydrator(factory, s.idColumn)
	case Hydrator[T]:
		hydrator = h
	default:
		return nil, &ConfigurationError{Entity: entityName, Reason: fmt.Sprintf("hydrator %T does not handle this entity type", s.hydrator)}
	}

	return &ObjectRepository[T]{
		executor:         executor,
		dispatcher:       s.dispatcher,
		cache:            s.cache,
		hydrator:         hydrator,
		identity:         NewIdentityMap[T](),
		log:              s.logger.WithFields(logrus.Fields{"entity": entityName, "table": tableName}),
		entityName:       entityName,
		tableName:        tableName,
		idColumn:         s.idColumn,
		softDeleteColumn: s.softDeleteColumn,
	}, nil
}

// TableName returns the table backing the repository
func (r *ObjectRepository[T]) TableName() string {
	return r.tableName
}

// EntityName returns the name used in type-specific event names
func (r *ObjectRepository[T]) EntityName() string {
	return r.entityName
}

// Identity exposes the identity map
func (r *ObjectRepository[T]) Identity() *IdentityMap[T] {
	return r.identity
}

// ============================================================================
// READ OPERATIONS
// ============================================================================

// Find returns the entity with the given id. The identity map is consulted
// first unless BypassIdentityCache is passed. Only Find fires afterLoad.
func (r *ObjectRepository[T]) Find(ctx context.Context, id int64, opts ...ReadOption) (T, bool, error) {
	var zero T
	read := applyReadOptions(opts)

	if !read.bypassIdentity {
		if entity, ok := r.identity.Get(id); ok {
			return entity, true, nil
		}
	}

	rows, err := r.executor.Select(ctx, db.SelectQuery{
		Table:    r.tableName,
		Criteria: db.Criteria{r.idColumn: id},
		Limit:    1,
	})
	if err != nil {
		return zero, false, fmt.Errorf("find %s %d: %w", r.entityName, id, err)
	}
	if len(rows) == 0 {
		return zero, false, nil
	}

	entity, err := r.hydrator.Hydrate(rows[0])
	if err != nil {
		return zero, false, err
	}

	r.dispatch(ctx, AfterLoad, entity)
	r.identity.Put(entity)
	return entity, true, nil
}

// FindByIDs returns the entities for ids. Cached instances come first in
// request order, followed by the rows loaded in one query in store order.
// Duplicate ids are collapsed and missing ids are skipped.
func (r *ObjectRepository[T]) FindByIDs(ctx context.Context, ids []int64, opts ...ReadOption) ([]T, error) {
	read := applyReadOptions(opts)

	result := make([]T, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	var missing []int64

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if !read.bypassIdentity {
			if entity, ok := r.identity.Get(id); ok {
				result = append(result, entity)
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return result, nil
	}

	rows, err := r.executor.Select(ctx, db.SelectQuery{
		Table:    r.tableName,
		Criteria: db.Criteria{r.idColumn: missing},
	})
	if err != nil {
		return nil, fmt.Errorf("find %s by ids: %w", r.entityName, err)
	}

	loaded, err := r.hydrateAll(rows)
	if err != nil {
		return nil, err
	}
	return append(result, loaded...), nil
}

// FindAll returns every row of the table, excluding soft-deleted rows when
// the table has the soft-delete column. The identity map is not consulted.
func (r *ObjectRepository[T]) FindAll(ctx context.Context) ([]T, error) {
	criteria := db.Criteria{}

	soft, err := r.hasSoftDelete(ctx)
	if err != nil {
		return nil, err
	}
	if soft {
		criteria[r.softDeleteColumn] = 0
	}

	rows, err := r.executor.Select(ctx, db.SelectQuery{Table: r.tableName, Criteria: criteria})
	if err != nil {
		return nil, fmt.Errorf("find all %s: %w", r.entityName, err)
	}
	return r.hydrateAll(rows)
}

// FindBy returns the rows matching criteria. Columns are ANDed; a slice value
// matches any of its elements and nil matches NULL. offset only applies when
// limit is positive.
func (r *ObjectRepository[T]) FindBy(ctx context.Context, criteria db.Criteria, orderBy []db.Order, limit, offset int) ([]T, error) {
	q := db.SelectQuery{
		Table:    r.tableName,
		Criteria: criteria,
		OrderBy:  orderBy,
	}
	if limit > 0 {
		q.Limit = limit
		q.Offset = offset
	}

	rows, err := r.executor.Select(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find %s by criteria: %w", r.entityName, err)
	}
	return r.hydrateAll(rows)
}

// FindOneBy returns the first row matching criteria
func (r *ObjectRepository[T]) FindOneBy(ctx context.Context, criteria db.Criteria) (T, bool, error) {
	var zero T
	entities, err := r.FindBy(ctx, criteria, nil, 1, 0)
	if err != nil {
		return zero, false, err
	}
	if len(entities) == 0 {
		return zero, false, nil
	}
	return entities[0], true, nil
}

// ============================================================================
// WRITE OPERATIONS
// ============================================================================

// Save inserts the entity when it has no id and updates it otherwise.
// Events fire as beforeSave, before{Insert,Update}, after{Insert,Update},
// afterSave.
func (r *ObjectRepository[T]) Save(ctx context.Context, entity T) error {
	if isNilEntity(entity) {
		return fmt.Errorf("save %s: entity cannot be nil", r.entityName)
	}

	r.dispatch(ctx, BeforeSave, entity)

	var err error
	if entity.GetID() == 0 {
		err = r.insert(ctx, entity)
	} else {
		err = r.update(ctx, entity)
	}
	if err != nil {
		return err
	}

	r.identity.Put(entity)
	r.dispatch(ctx, AfterSave, entity)
	return nil
}

func (r *ObjectRepository[T]) insert(ctx context.Context, entity T) error {
	r.dispatch(ctx, BeforeInsert, entity)

	row, err := r.persistableRow(ctx, entity)
	if err != nil {
		return err
	}

	id, err := r.executor.Insert(ctx, r.tableName, row)
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.entityName, err)
	}
	entity.SetID(id)

	r.log.WithField("id", id).Debug("entity inserted")
	r.dispatch(ctx, AfterInsert, entity)
	return nil
}

func (r *ObjectRepository[T]) update(ctx context.Context, entity T) error {
	r.dispatch(ctx, BeforeUpdate, entity)

	row, err := r.persistableRow(ctx, entity)
	if err != nil {
		return err
	}

	if _, err := r.executor.Update(ctx, r.tableName, row, db.Criteria{r.idColumn: entity.GetID()}); err != nil {
		return fmt.Errorf("update %s %d: %w", r.entityName, entity.GetID(), err)
	}

	r.dispatch(ctx, AfterUpdate, entity)
	return nil
}

// SaveAll writes every entity in one batch upsert and returns the
// affected-row count the store reports. Entities whose rows write different
// columns go out as separate statements of the same batch. New entities receive contiguous ids
// in input order starting at the first generated id. All before events fire
// before the statement runs and all after events once ids are assigned.
func (r *ObjectRepository[T]) SaveAll(ctx context.Context, entities []T) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	inserts := make([]bool, len(entities))
	newCount := 0
	for i, entity := range entities {
		if isNilEntity(entity) {
			return 0, fmt.Errorf("save all %s: entity %d is nil", r.entityName, i)
		}
		inserts[i] = entity.GetID() == 0
		if inserts[i] {
			newCount++
		}
	}

	for i, entity := range entities {
		r.dispatch(ctx, BeforeSave, entity)
		if inserts[i] {
			r.dispatch(ctx, BeforeInsert, entity)
		} else {
			r.dispatch(ctx, BeforeUpdate, entity)
		}
	}

	rows := make([]db.Row, len(entities))
	for i, entity := range entities {
		row, err := r.persistableRow(ctx, entity)
		if err != nil {
			return 0, err
		}
		if inserts[i] {
			row[r.idColumn] = nil
		} else {
			row[r.idColumn] = entity.GetID()
		}
		rows[i] = row
	}

	result, err := r.executor.BatchUpsert(ctx, r.tableName, r.idColumn, rows)
	if err != nil {
		return 0, fmt.Errorf("save all %s: %w", r.entityName, err)
	}
	if newCount > 0 && result.FirstID <= 0 {
		return 0, fmt.Errorf("save all %s: %w", r.entityName, ErrGeneratedIDUnavailable)
	}

	next := result.FirstID
	for i, entity := range entities {
		if inserts[i] {
			entity.SetID(next)
			next++
		}
	}

	for i, entity := range entities {
		r.identity.Put(entity)
		if inserts[i] {
			r.dispatch(ctx, AfterInsert, entity)
		} else {
			r.dispatch(ctx, AfterUpdate, entity)
		}
		r.dispatch(ctx, AfterSave, entity)
	}

	r.log.WithFields(logrus.Fields{
		"count":    len(entities),
		"inserted": newCount,
		"affected": result.Affected,
	}).Debug("batch saved")
	return result.Affected, nil
}

// Delete marks the row deleted when the table has the soft-delete column and
// removes it otherwise. The instance is flagged deleted in both cases.
func (r *ObjectRepository[T]) Delete(ctx context.Context, entity T) error {
	if isNilEntity(entity) {
		return fmt.Errorf("delete %s: entity cannot be nil", r.entityName)
	}
	if entity.GetID() == 0 {
		return fmt.Errorf("delete %s: %w", r.entityName, ErrNotPersisted)
	}

	soft, err := r.hasSoftDelete(ctx)
	if err != nil {
		return err
	}

	r.dispatch(ctx, BeforeDelete, entity)

	key := db.Criteria{r.idColumn: entity.GetID()}
	if soft {
		_, err = r.executor.Update(ctx, r.tableName, db.Row{r.softDeleteColumn: 1}, key)
	} else {
		_, err = r.executor.Delete(ctx, r.tableName, key)
	}
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", r.entityName, entity.GetID(), err)
	}

	entity.SetIsDeleted(true)
	r.dispatch(ctx, AfterDelete, entity)
	return nil
}

// DeleteAll deletes every entity with one statement and returns the
// affected-row count.
func (r *ObjectRepository[T]) DeleteAll(ctx context.Context, entities []T) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(entities))
	for i, entity := range entities {
		if isNilEntity(entity) {
			return 0, fmt.Errorf("delete all %s: entity %d is nil", r.entityName, i)
		}
		if entity.GetID() == 0 {
			return 0, fmt.Errorf("delete all %s: entity %d: %w", r.entityName, i, ErrNotPersisted)
		}
		ids[i] = entity.GetID()
	}

	soft, err := r.hasSoftDelete(ctx)
	if err != nil {
		return 0, err
	}

	for _, entity := range entities {
		r.dispatch(ctx, BeforeDelete, entity)
	}

	var affected int64
	key := db.Criteria{r.idColumn: ids}
	if soft {
		affected, err = r.executor.Update(ctx, r.tableName, db.Row{r.softDeleteColumn: 1}, key)
	} else {
		affected, err = r.executor.Delete(ctx, r.tableName, key)
	}
	if err != nil {
		return 0, fmt.Errorf("delete all %s: %w", r.entityName, err)
	}

	for _, entity := range entities {
		entity.SetIsDeleted(true)
		r.dispatch(ctx, AfterDelete, entity)
	}
	return affected, nil
}

// ============================================================================
// SECONDARY CACHE
// ============================================================================

// RestoreAllFromCache hydrates the rows stored under key. A cache failure is
// logged and reported as a miss. Restored entities enter the identity map,
// replacing instances already there.
func (r *ObjectRepository[T]) RestoreAllFromCache(ctx context.Context, key string) ([]T, bool, error) {
	if r.cache == nil {
		return nil, false, nil
	}

	rows, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.WithError(err).WithField("key", key).Warn("result cache read failed")
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}

	entities, err := r.hydrateAll(rows)
	if err != nil {
		return nil, false, err
	}
	return entities, true, nil
}

// StoreAllInCache stores the entities' rows under key for ttl and adds the
// entities to the identity map. Without a result cache only the identity map
// is updated.
func (r *ObjectRepository[T]) StoreAllInCache(ctx context.Context, entities []T, key string, ttl time.Duration) error {
	rows := make([]db.Row, 0, len(entities))
	for _, entity := range entities {
		r.identity.Put(entity)
		rows = append(rows, r.hydrator.Dehydrate(entity))
	}

	if r.cache == nil {
		return nil
	}
	if err := r.cache.Set(ctx, key, rows, ttl); err != nil {
		return fmt.Errorf("store %s in result cache: %w", key, err)
	}
	return nil
}

// ForgetCached removes key from the result cache
func (r *ObjectRepository[T]) ForgetCached(ctx context.Context, key string) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("forget %s: %w", key, err)
	}
	return nil
}

// CacheKey builds a result-cache key of the form
// rowrepo:<table>:<operation>[:<hash of args>].
func (r *ObjectRepository[T]) CacheKey(operation string, args ...any) string {
	key := strings.Join([]string{cacheKeyPrefix, r.tableName, operation}, cacheKeySeparator)
	if len(args) == 0 {
		return key
	}

	// encoding/json sorts map keys, so equal criteria hash equally
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", args))
	}
	hashStr := fmt.Sprintf("%016x", xxhash.Sum64(data))
	return key + cacheKeySeparator + hashStr[:cacheKeyHashLength]
}

// ============================================================================
// HELPERS
// ============================================================================

func (r *ObjectRepository[T]) dispatch(ctx context.Context, phase Phase, entity T) {
	r.dispatcher.Dispatch(ctx, string(phase), entity)
	r.dispatcher.Dispatch(ctx, EventName(phase, r.entityName), entity)
}

// hydrateAll builds entities for rows and puts each into the identity map,
// replacing cached instances.
func (r *ObjectRepository[T]) hydrateAll(rows []db.Row) ([]T, error) {
	entities := make([]T, 0, len(rows))
	for _, row := range rows {
		entity, err := r.hydrator.Hydrate(row)
		if err != nil {
			return nil, err
		}
		r.identity.Put(entity)
		entities = append(entities, entity)
	}
	return entities, nil
}

func (r *ObjectRepository[T]) tableColumns(ctx context.Context) (db.Columns, error) {
	if r.columns != nil {
		return r.columns, nil
	}
	columns, err := r.executor.Columns(ctx, r.tableName)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", r.tableName, err)
	}
	r.columns = columns
	return columns, nil
}

func (r *ObjectRepository[T]) hasSoftDelete(ctx context.Context) (bool, error) {
	if r.softDeleteColumn == "" {
		return false, nil
	}
	columns, err := r.tableColumns(ctx)
	if err != nil {
		return false, err
	}
	return columns.Has(r.softDeleteColumn), nil
}

// persistableRow restricts the entity's data to the table's columns. The id
// column is always dropped and nil values are kept only for nullable columns.
func (r *ObjectRepository[T]) persistableRow(ctx context.Context, entity T) (db.Row, error) {
	columns, err := r.tableColumns(ctx)
	if err != nil {
		return nil, err
	}

	data := r.hydrator.Dehydrate(entity)
	row := make(db.Row, len(data))
	for column, value := range data {
		if column == r.idColumn || !columns.Has(column) {
			continue
		}
		if value == nil && !columns.Nullable(column) {
			continue
		}
		row[column] = value
	}
	return row, nil
}

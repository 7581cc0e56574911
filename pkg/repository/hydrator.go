package repository

import (
	"maps"

	"github.com/ammar0144/rowrepo/pkg/db"
)

// Hydrator turns rows into entities and back.
type Hydrator[T Entity] interface {
	Hydrate(row db.Row) (T, error)
	Dehydrate(entity T) db.Row
}

// DataHydrator hydrates through the entity's own SetData/GetData.
type DataHydrator[T Entity] struct {
	factory  Factory[T]
	idColumn string
}

// NewDataHydrator creates a hydrator that builds entities with factory
func NewDataHydrator[T Entity](factory Factory[T], idColumn string) *DataHydrator[T] {
	return &DataHydrator[T]{factory: factory, idColumn: idColumn}
}

// Hydrate creates an entity and loads row into it. The id column is also
// applied through SetID so entities need not parse it themselves.
func (h *DataHydrator[T]) Hydrate(row db.Row) (T, error) {
	entity := h.factory.Create()
	if isNilEntity(entity) {
		var zero T
		return zero, &ConfigurationError{Entity: entityTypeName[T](), Reason: "factory returned a nil entity"}
	}

	entity.SetData(maps.Clone(row))
	if id, ok := AsInt64(row[h.idColumn]); ok {
		entity.SetID(id)
	}
	return entity, nil
}

// Dehydrate returns the entity's data
func (h *DataHydrator[T]) Dehydrate(entity T) db.Row {
	return entity.GetData()
}

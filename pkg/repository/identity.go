package repository

// IdentityMap keeps one instance per id for the life of a repository.
// It is not safe for concurrent use; a repository is meant to serve a
// single unit of work.
type IdentityMap[T Entity] struct {
	entries map[int64]T
}

// NewIdentityMap creates an empty identity map
func NewIdentityMap[T Entity]() *IdentityMap[T] {
	return &IdentityMap[T]{entries: make(map[int64]T)}
}

// Get returns the cached instance for id
func (m *IdentityMap[T]) Get(id int64) (T, bool) {
	entity, ok := m.entries[id]
	return entity, ok
}

// Put caches entity under its id, replacing any previous instance.
// Entities without an id are ignored.
func (m *IdentityMap[T]) Put(entity T) {
	id := entity.GetID()
	if id == 0 {
		return
	}
	m.entries[id] = entity
}

// Len returns the number of cached instances
func (m *IdentityMap[T]) Len() int {
	return len(m.entries)
}

// Clear drops every cached instance
func (m *IdentityMap[T]) Clear() {
	clear(m.entries)
}

package repository

import (
	"math"
	"reflect"
	"strconv"

	"github.com/ammar0144/rowrepo/pkg/db"
)

// Entity is the contract every row-backed type implements.
//
// GetID returns 0 until the entity has been persisted; the repository
// assigns the generated id through SetID. GetData returns the full persisted
// state keyed by column name and SetData restores it.
type Entity interface {
	TableName() string
	GetID() int64
	SetID(id int64)
	GetData() db.Row
	SetData(data db.Row)
	SetIsDeleted(deleted bool)
}

// BaseEntity implements the identity and soft-delete parts of Entity.
// Embed it and add TableName, GetData and SetData.
type BaseEntity struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"isDeleted"`
}

// GetID returns the entity id, 0 when unsaved
func (b *BaseEntity) GetID() int64 {
	return b.ID
}

// SetID sets the entity id
func (b *BaseEntity) SetID(id int64) {
	b.ID = id
}

// IsDeleted reports whether the entity was deleted
func (b *BaseEntity) IsDeleted() bool {
	return b.Deleted
}

// SetIsDeleted marks the entity deleted or not
func (b *BaseEntity) SetIsDeleted(deleted bool) {
	b.Deleted = deleted
}

// AsInt64 converts the numeric shapes drivers and codecs produce for an
// integer column into an int64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return AsInt64(float64(n))
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case []byte:
		return AsInt64(string(n))
	default:
		return 0, false
	}
}

// isNilEntity reports whether e is a nil interface or a typed nil pointer.
func isNilEntity(e any) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return v.IsNil()
	}
	return false
}

// entityTypeName returns the Go type name of T with pointers stripped.
func entityTypeName[T Entity]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

package repository

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// TableConvention resolves the table backing an entity type.
type TableConvention interface {
	TableNameFor(entityName string, sample Entity) (string, error)
}

// TableConventionFunc adapts a function to TableConvention.
type TableConventionFunc func(entityName string, sample Entity) (string, error)

// TableNameFor calls f
func (f TableConventionFunc) TableNameFor(entityName string, sample Entity) (string, error) {
	return f(entityName, sample)
}

// EntityConvention uses the entity's own TableName.
type EntityConvention struct{}

// TableNameFor returns sample.TableName()
func (EntityConvention) TableNameFor(entityName string, sample Entity) (string, error) {
	if sample == nil {
		return "", &ConfigurationError{Entity: entityName, Reason: "no sample entity"}
	}
	name := sample.TableName()
	if name == "" {
		return "", &ConfigurationError{Entity: entityName, Reason: "empty table name"}
	}
	return name, nil
}

// InflectionConvention prefers the entity's TableName and falls back to the
// pluralized snake_case entity name ("OrderLine" -> "order_lines").
type InflectionConvention struct{}

// TableNameFor resolves the table name
func (InflectionConvention) TableNameFor(entityName string, sample Entity) (string, error) {
	if sample != nil {
		if name := sample.TableName(); name != "" {
			return name, nil
		}
	}
	if entityName == "" {
		return "", &ConfigurationError{Reason: "entity has no name to derive a table from"}
	}
	return inflection.Plural(toSnakeCase(entityName)), nil
}

func toSnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/truora/minisql/interpreter/language"
)

// keySchema lists the columns of a primary or unique key
type keySchema struct {
	Columns   []string
	Secondary bool
}

// GetKey returns the display form of the key, its parts joined with "-" the
// way MySQL prints them in duplicate entry errors
func (ks keySchema) GetKey(row *language.Row) (string, error) {
	key, err := ks.getKeyValue(row)
	if ks.Secondary && errors.Is(err, errMissingField) {
		// unique indexes accept any number of NULL keys
		err = nil
	}

	return key, err
}

func (ks keySchema) getKeyValue(row *language.Row) (string, error) {
	parts := make([]string, 0, len(ks.Columns))

	for _, column := range ks.Columns {
		val, ok := row.Get(column)
		if !ok || val.Type() == language.ObjectTypeNull {
			return "", fmt.Errorf("%w: %s", errMissingField, column)
		}

		parts = append(parts, val.Inspect())
	}

	return strings.Join(parts, "-"), nil
}

// getKeyRow returns a row with only the key columns
func (ks keySchema) getKeyRow(row *language.Row) *language.Row {
	keyRow := language.NewRow()

	for _, column := range ks.Columns {
		if v, ok := row.Get(column); ok {
			keyRow.Set(column, v)
		}
	}

	return keyRow
}

// normalizeKey folds the key the way the default case insensitive collation
// compares it
func normalizeKey(key string) string {
	return strings.ToLower(key)
}

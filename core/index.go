package core

import (
	"github.com/truora/minisql/interpreter/language"
	"github.com/truora/minisql/types"
)

// index is a unique secondary index
type index struct {
	Name      string
	keySchema keySchema
	Table     *Table
	// refs maps primary keys to index keys
	refs map[string]string
	// owners maps index keys to the primary key holding them
	owners map[string]string
}

func newIndex(t *Table, name string, ks keySchema) *index {
	ks.Secondary = true

	return &index{
		Name:      name,
		keySchema: ks,
		Table:     t,
		refs:      map[string]string{},
		owners:    map[string]string{},
	}
}

func (i *index) Clear() {
	i.refs = map[string]string{}
	i.owners = map[string]string{}
}

// conflict returns the primary key of the row already holding the index key
// of the given row, if it is not the row stored under key itself
func (i *index) conflict(key string, row *language.Row) (string, string, bool) {
	indexKey, err := i.keySchema.GetKey(row)
	if err != nil || indexKey == "" {
		return "", "", false
	}

	owner, taken := i.owners[normalizeKey(indexKey)]
	if !taken || owner == key {
		return "", "", false
	}

	return owner, indexKey, true
}

func (i *index) duplicateError(indexKey string) error {
	return types.NewRuntimeError(types.CodeDupEntry, "Duplicate entry '%s' for key '%s.%s'", indexKey, i.Table.Name, i.Name)
}

func (i *index) putData(key string, row *language.Row) error {
	if _, indexKey, taken := i.conflict(key, row); taken {
		return i.duplicateError(indexKey)
	}

	indexKey, err := i.keySchema.GetKey(row)
	if err != nil {
		return err
	}

	i.release(key)

	if indexKey == "" {
		return nil
	}

	normalized := normalizeKey(indexKey)

	i.refs[key] = normalized
	i.owners[normalized] = key

	return nil
}

// updateData moves the row stored under oldKey to key
func (i *index) updateData(oldKey, key string, row *language.Row) error {
	if _, indexKey, taken := i.conflict(oldKey, row); taken {
		return i.duplicateError(indexKey)
	}

	i.release(oldKey)

	return i.putData(key, row)
}

func (i *index) delete(key string) {
	i.release(key)
}

func (i *index) release(key string) {
	old, ok := i.refs[key]
	if !ok {
		return
	}

	delete(i.refs, key)

	if i.owners[old] == key {
		delete(i.owners, old)
	}
}

func (i *index) count() int64 {
	return int64(len(i.owners))
}

package core

import "github.com/truora/minisql/interpreter/language"

// ChangeType is the kind of write a change record describes
type ChangeType string

const (
	// ChangeInsert a row was inserted
	ChangeInsert ChangeType = "INSERT"
	// ChangeUpdate a row was updated
	ChangeUpdate ChangeType = "UPDATE"
	// ChangeDelete a row was deleted
	ChangeDelete ChangeType = "DELETE"
)

// ChangeView selects the row images kept in change records
type ChangeView string

const (
	// ChangeViewKeysOnly keeps only the primary key columns
	ChangeViewKeysOnly ChangeView = "KEYS_ONLY"
	// ChangeViewNewImage keeps the row after the write
	ChangeViewNewImage ChangeView = "NEW_IMAGE"
	// ChangeViewOldImage keeps the row before the write
	ChangeViewOldImage ChangeView = "OLD_IMAGE"
	// ChangeViewNewAndOldImages keeps both rows
	ChangeViewNewAndOldImages ChangeView = "NEW_AND_OLD_IMAGES"
)

// ChangeRecord describes a write on a table, rows use table.column keys
type ChangeRecord struct {
	Type  ChangeType
	Table string
	Keys  *language.Row
	Old   *language.Row
	New   *language.Row
}

// EnableChangeLog starts recording the writes on the table
func (t *Table) EnableChangeLog(view ChangeView) {
	t.ChangeLogEnabled = true
	t.ChangeLogView = view
}

// DisableChangeLog stops recording writes, recorded changes are kept
func (t *Table) DisableChangeLog() {
	t.ChangeLogEnabled = false
}

// GetChangeRecords returns all change records
func (t *Table) GetChangeRecords() []ChangeRecord {
	return t.ChangeLog
}

// ClearChangeRecords clears all change records
func (t *Table) ClearChangeRecords() {
	t.ChangeLog = []ChangeRecord{}
}

func (t *Table) record(typ ChangeType, old, row *language.Row) {
	if !t.ChangeLogEnabled {
		return
	}

	rec := ChangeRecord{Type: typ, Table: t.Name}

	image := row
	if image == nil {
		image = old
	}

	// tables without primary key are identified by the whole row
	rec.Keys = t.qualify(image)
	if len(t.KeySchema.Columns) > 0 {
		rec.Keys = t.qualifyColumns(t.KeySchema.getKeyRow(image))
	}

	switch t.ChangeLogView {
	case ChangeViewNewImage:
		rec.New = t.qualifyImage(row)
	case ChangeViewOldImage:
		rec.Old = t.qualifyImage(old)
	case ChangeViewNewAndOldImages:
		rec.New = t.qualifyImage(row)
		rec.Old = t.qualifyImage(old)
	}

	t.ChangeLog = append(t.ChangeLog, rec)
}

func (t *Table) qualifyImage(row *language.Row) *language.Row {
	if row == nil {
		return nil
	}

	return t.qualify(row)
}

func (t *Table) qualifyColumns(row *language.Row) *language.Row {
	out := language.NewRow()

	for _, col := range row.Columns() {
		val, _ := row.Get(col)
		out.Set(t.Name+"."+col, val)
	}

	return out
}

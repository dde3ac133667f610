package chain

import (
	"database/sql"
	"reflect"
	"strings"
)

// Nullability records what the driver reported about a column.
type Nullability int

const (
	// NullabilityUnknown means the driver did not say; the column is assumed nullable.
	NullabilityUnknown Nullability = iota
	Nullable
	NotNull
)

// ColumnDescriptor describes one column of a result set.
type ColumnDescriptor struct {
	Name         string
	Nullability  Nullability
	DatabaseType string       // driver type tag, e.g. "INT4", "DATETIME"
	ScanType     reflect.Type // may be nil
}

// AllowsNull reports whether a NULL may legitimately appear in the column.
func (c ColumnDescriptor) AllowsNull() bool {
	return c.Nullability != NotNull
}

func describeColumns(names []string, types []*sql.ColumnType) []ColumnDescriptor {
	cols := make([]ColumnDescriptor, len(names))
	for i, name := range names {
		cols[i] = ColumnDescriptor{Name: name}
		if i >= len(types) || types[i] == nil {
			continue
		}
		ct := types[i]
		if nullable, ok := ct.Nullable(); ok {
			if nullable {
				cols[i].Nullability = Nullable
			} else {
				cols[i].Nullability = NotNull
			}
		}
		cols[i].DatabaseType = strings.ToUpper(ct.DatabaseTypeName())
		cols[i].ScanType = ct.ScanType()
	}
	return cols
}

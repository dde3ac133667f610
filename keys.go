package chain

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// keyKind is the grouping strategy for a master key column.
type keyKind int

const (
	keyInteger keyKind = iota + 1
	keyUnsigned
	keyGUID
	keyString
	keyBinary
	keyInstant
	keyWallClock
	keyDate
)

var keyKindNames = map[keyKind]string{
	keyInteger:   "integer",
	keyUnsigned:  "unsigned",
	keyGUID:      "guid",
	keyString:    "string",
	keyBinary:    "binary",
	keyInstant:   "instant",
	keyWallClock: "wall clock",
	keyDate:      "date",
}

func (k keyKind) String() string {
	if n, ok := keyKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// guidTypes are database type tags whose 16 byte values are GUIDs.
var guidTypes = []string{"UUID", "UNIQUEIDENTIFIER", "BINARY(16)"}

// keyKindOf selects the strategy for col from a sample value, which must not
// be nil.
func keyKindOf(col ColumnDescriptor, sample any) (keyKind, error) {
	switch v := sample.(type) {
	case int, int16, int32, int64:
		return keyInteger, nil
	case uint64:
		return keyUnsigned, nil
	case uuid.UUID, [16]byte:
		return keyGUID, nil
	case string:
		if isGUIDColumn(col) {
			return keyGUID, nil
		}
		return keyString, nil
	case []byte:
		switch {
		case len(v) == 16 && isGUIDColumn(col):
			return keyGUID, nil
		case isTextColumn(col):
			return keyString, nil
		}
		return keyBinary, nil
	case time.Time:
		return timeKeyKind(col.DatabaseType), nil
	}
	return 0, fmt.Errorf("%w: master key column %s has type %T", ErrNotSupported, col.Name, sample)
}

func isGUIDColumn(col ColumnDescriptor) bool {
	for _, t := range guidTypes {
		if col.DatabaseType == t {
			return true
		}
	}
	return false
}

// textTypes mark columns whose []byte values are text, as MySQL returns them.
var textTypes = []string{"CHAR", "TEXT", "CLOB", "STRING", "ENUM"}

func isTextColumn(col ColumnDescriptor) bool {
	t := strings.ToUpper(col.DatabaseType)
	for _, tt := range textTypes {
		if strings.Contains(t, tt) {
			return true
		}
	}
	return false
}

// timeKeyKind picks the time flavour from the database type tag. Unknown tags
// compare as instants.
func timeKeyKind(dbType string) keyKind {
	switch {
	case strings.Contains(dbType, "WITHOUT TIME ZONE"):
		return keyWallClock
	case strings.Contains(dbType, "TZ"), strings.Contains(dbType, "OFFSET"), strings.Contains(dbType, "TIME ZONE"):
		return keyInstant
	case dbType == "DATE":
		return keyDate
	case strings.HasPrefix(dbType, "DATETIME"), strings.HasPrefix(dbType, "TIMESTAMP"), dbType == "SMALLDATETIME":
		return keyWallClock
	}
	return keyInstant
}

type instantKey struct {
	sec  int64
	nsec int
}

type dateKey struct {
	year  int
	month time.Month
	day   int
}

func integerKey(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int:
		return int64(n), nil
	}
	return 0, keyTypeError(v, keyInteger)
}

func unsignedKey(v any) (uint64, error) {
	if n, ok := v.(uint64); ok {
		return n, nil
	}
	return 0, keyTypeError(v, keyUnsigned)
}

func guidKey(v any) (uuid.UUID, error) {
	switch g := v.(type) {
	case uuid.UUID:
		return g, nil
	case [16]byte:
		return uuid.UUID(g), nil
	case []byte:
		if len(g) == 16 {
			return uuid.FromBytes(g)
		}
		return uuid.ParseBytes(g)
	case string:
		return uuid.Parse(g)
	}
	return uuid.Nil, keyTypeError(v, keyGUID)
}

// stringKey folds case; a Caser is stateful, so each grouping gets its own.
func stringKey() func(v any) (string, error) {
	folder := cases.Fold()
	return func(v any) (string, error) {
		switch s := v.(type) {
		case string:
			return folder.String(s), nil
		case []byte:
			return folder.String(string(s)), nil
		}
		return "", keyTypeError(v, keyString)
	}
}

// binaryKey compares raw bytes.
func binaryKey(v any) (string, error) {
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return "", keyTypeError(v, keyBinary)
}

func instantKeyOf(v any) (instantKey, error) {
	t, ok := v.(time.Time)
	if !ok {
		return instantKey{}, keyTypeError(v, keyInstant)
	}
	return instantKey{sec: t.Unix(), nsec: t.Nanosecond()}, nil
}

// wallClockKey ignores the location: 10:00 in any zone equals 10:00.
func wallClockKey(v any) (instantKey, error) {
	t, ok := v.(time.Time)
	if !ok {
		return instantKey{}, keyTypeError(v, keyWallClock)
	}
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	wall := time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
	return instantKey{sec: wall.Unix(), nsec: wall.Nanosecond()}, nil
}

func dateKeyOf(v any) (dateKey, error) {
	t, ok := v.(time.Time)
	if !ok {
		return dateKey{}, keyTypeError(v, keyDate)
	}
	y, m, d := t.Date()
	return dateKey{year: y, month: m, day: d}, nil
}

func keyTypeError(v any, kind keyKind) error {
	return fmt.Errorf("%w: master key value of type %s in a %s key column", ErrNotSupported, reflect.TypeOf(v), kind)
}

// groupRows splits rows into groups sharing the value of column ord, in
// first-seen order.
func groupRows(schema *Schema, rows []Row, ord int) ([][]Row, error) {
	col := schema.Column(ord)
	for _, row := range rows {
		if row.IsNull(ord) {
			return nil, missingDataf("NULL master key in column %s", col.Name)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	kind, err := keyKindOf(col, rows[0].Value(ord))
	if err != nil {
		return nil, err
	}
	switch kind {
	case keyInteger:
		return groupBy(rows, ord, integerKey)
	case keyUnsigned:
		return groupBy(rows, ord, unsignedKey)
	case keyGUID:
		return groupBy(rows, ord, guidKey)
	case keyString:
		return groupBy(rows, ord, stringKey())
	case keyBinary:
		return groupBy(rows, ord, binaryKey)
	case keyInstant:
		return groupBy(rows, ord, instantKeyOf)
	case keyWallClock:
		return groupBy(rows, ord, wallClockKey)
	case keyDate:
		return groupBy(rows, ord, dateKeyOf)
	}
	return nil, fmt.Errorf("%w: key kind %s", ErrNotSupported, kind)
}

func groupBy[K comparable](rows []Row, ord int, key func(any) (K, error)) ([][]Row, error) {
	index := make(map[K]int)
	var groups [][]Row
	for _, row := range rows {
		k, err := key(row.Value(ord))
		if err != nil {
			return nil, err
		}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], row)
	}
	return groups, nil
}

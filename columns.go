package chain

import (
	"strings"
)

// ColumnsKind says which columns a materializer wants projected.
type ColumnsKind int

const (
	// NoColumns is requested by non-queries.
	NoColumns ColumnsKind = iota
	// AllColumns leaves the projection to the command builder. Names, when
	// present, lists every column the materializer can use.
	AllColumns
	// SpecificColumns requests exactly Names.
	SpecificColumns
)

func (k ColumnsKind) String() string {
	switch k {
	case NoColumns:
		return "none"
	case AllColumns:
		return "all"
	case SpecificColumns:
		return "specific"
	}
	return "unknown"
}

// DesiredColumns is the projection a materializer asks of its command builder.
type DesiredColumns struct {
	Kind  ColumnsKind
	Names []string
}

// ColumnSource is implemented by every materializer. Command builders call it
// once before generating SQL.
type ColumnSource interface {
	DesiredColumns() (DesiredColumns, error)
}

func allColumns(names ...string) DesiredColumns {
	return DesiredColumns{Kind: AllColumns, Names: names}
}

func specificColumns(names ...string) DesiredColumns {
	return DesiredColumns{Kind: SpecificColumns, Names: names}
}

// validateOptions rejects option combinations that contradict each other.
func validateOptions(o *options) error {
	if o.includeSet && o.excludeSet {
		return configErrorf("include and exclude column lists cannot be combined")
	}
	if o.hasConstructor() && (o.includeSet || o.excludeSet) {
		return configErrorf("include or exclude column lists cannot be combined with a constructor")
	}
	if o.ctorSet && o.infer {
		return configErrorf("WithConstructor and InferConstructor cannot be combined")
	}
	return nil
}

// objectColumns computes the projection for materializing m under o.
func objectColumns[T any](m *Mapping[T], o *options) (DesiredColumns, error) {
	if err := validateOptions(o); err != nil {
		return DesiredColumns{}, err
	}
	ctor, err := m.constructor(o)
	if err != nil {
		return DesiredColumns{}, err
	}
	if ctor != nil {
		names := make([]string, 0, len(ctor.params))
		for _, p := range ctor.params {
			names = append(names, p.Name)
		}
		if o.populate {
			names = appendMissing(names, m.Columns()...)
		}
		return specificColumns(names...), nil
	}

	mapped := m.Columns()
	switch {
	case o.includeSet:
		for _, name := range o.include {
			if !containsFold(mapped, name) {
				return DesiredColumns{}, mappingErrorf("%s has no mapped column %q", m.name, name)
			}
		}
		return specificColumns(o.include...), nil
	case o.excludeSet:
		var names []string
		for _, c := range mapped {
			if !containsFold(o.exclude, c) {
				names = append(names, c)
			}
		}
		if len(names) == 0 {
			return DesiredColumns{}, mappingErrorf("excluding %v leaves no columns of %s", o.exclude, m.name)
		}
		return specificColumns(names...), nil
	}
	return allColumns(mapped...), nil
}

// withColumn forces name into dc.
func withColumn(dc DesiredColumns, name string) DesiredColumns {
	if dc.Kind == NoColumns {
		return specificColumns(name)
	}
	dc.Names = appendMissing(append([]string(nil), dc.Names...), name)
	return dc
}

// mergeColumns unions two projections; the result is AllColumns only when
// both are.
func mergeColumns(a, b DesiredColumns) DesiredColumns {
	names := appendMissing(append([]string(nil), a.Names...), b.Names...)
	if a.Kind == AllColumns && b.Kind == AllColumns {
		return allColumns(names...)
	}
	return specificColumns(names...)
}

func appendMissing(names []string, more ...string) []string {
	for _, n := range more {
		if !containsFold(names, n) {
			names = append(names, n)
		}
	}
	return names
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

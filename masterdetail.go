package chain

import (
	"fmt"
)

// DetailsFunc returns the detail collection of a master object.
type DetailsFunc[M, D any] func(master *M) *[]*D

// WithDetailOptions applies opts to the detail mapping of a master/detail
// materializer; the other options apply to the master.
func WithDetailOptions(opts ...Option) Option {
	return func(o *options) { o.detail = append(o.detail, opts...) }
}

// ToMasterDetail rebuilds master objects and their details from a flat join.
// Rows are grouped by keyColumn in first-seen order; each group yields one
// master built from its first row and one detail per row.
func ToMasterDetail[M, D any](cmd CommandBuilder, keyColumn string, master *Mapping[M], detail *Mapping[D], details DetailsFunc[M, D], opts ...Option) *Materializer[[]*M] {
	o := newOptions(opts)
	do := newOptions(o.detail)
	return &Materializer[[]*M]{
		cmd:       cmd,
		operation: fmt.Sprintf("ToMasterDetail[%s,%s]", master.name, detail.name),
		columns:   func() (DesiredColumns, error) { return masterDetailColumns(keyColumn, master, detail, o, do) },
		read: func(r *Reader) ([]*M, error) {
			return readMasterDetail(r, keyColumn, master, detail, details, o, do)
		},
	}
}

// ToMasterDetailObject is ToMasterDetail for a result with exactly one master.
func ToMasterDetailObject[M, D any](cmd CommandBuilder, keyColumn string, master *Mapping[M], detail *Mapping[D], details DetailsFunc[M, D], opts ...Option) *Materializer[*M] {
	return singleMaster(ToMasterDetail(cmd, keyColumn, master, detail, details, opts...), "ToMasterDetailObject", true, opts)
}

// ToMasterDetailObjectOrNil is ToMasterDetailObject returning nil when there
// are no rows, unless PreventEmptyResults is set.
func ToMasterDetailObjectOrNil[M, D any](cmd CommandBuilder, keyColumn string, master *Mapping[M], detail *Mapping[D], details DetailsFunc[M, D], opts ...Option) *Materializer[*M] {
	return singleMaster(ToMasterDetail(cmd, keyColumn, master, detail, details, opts...), "ToMasterDetailObjectOrNil", false, opts)
}

func singleMaster[M any](list *Materializer[[]*M], name string, required bool, opts []Option) *Materializer[*M] {
	o := newOptions(opts)
	op := name + list.operation[len("ToMasterDetail"):]
	return &Materializer[*M]{
		cmd:       list.cmd,
		operation: op,
		columns:   list.columns,
		read: func(r *Reader) (*M, error) {
			masters, err := list.read(r)
			if err != nil {
				return nil, err
			}
			head := masters
			if len(head) > 1 {
				head = head[:1]
			}
			m, _, err := single(head, len(masters) > 1, required, o.row, op)
			return m, err
		},
	}
}

func masterDetailColumns[M, D any](keyColumn string, master *Mapping[M], detail *Mapping[D], mo, do *options) (DesiredColumns, error) {
	if keyColumn == "" {
		return DesiredColumns{}, configErrorf("master/detail requires a master key column")
	}
	mc, err := objectColumns(master, mo)
	if err != nil {
		return DesiredColumns{}, err
	}
	dc, err := objectColumns(detail, do)
	if err != nil {
		return DesiredColumns{}, err
	}
	return withColumn(mergeColumns(mc, dc), keyColumn), nil
}

func readMasterDetail[M, D any](r *Reader, keyColumn string, master *Mapping[M], detail *Mapping[D], details DetailsFunc[M, D], mo, do *options) ([]*M, error) {
	table, err := r.ReadTable()
	if err != nil {
		return nil, err
	}
	ord, err := columnOrdinal(table.schema, keyColumn)
	if err != nil {
		return nil, err
	}
	mp, err := master.bind(table.schema, mo)
	if err != nil {
		return nil, err
	}
	dp, err := detail.bind(table.schema, do)
	if err != nil {
		return nil, err
	}
	groups, err := groupRows(table.schema, table.rows, ord)
	if err != nil {
		return nil, err
	}
	out := make([]*M, 0, len(groups))
	for _, group := range groups {
		m, err := mp.build(group[0])
		if err != nil {
			return nil, err
		}
		coll := details(m)
		for _, row := range group {
			d, err := dp.build(row)
			if err != nil {
				return nil, err
			}
			*coll = append(*coll, d)
		}
		out = append(out, m)
	}
	return out, nil
}

package chain

import "reflect"

// RowOptions adjust single-row materializers.
type RowOptions uint8

const (
	// DiscardExtraRows ignores rows after the first instead of failing.
	DiscardExtraRows RowOptions = 1 << iota
	// PreventEmptyResults turns an empty result into ErrMissingData for the
	// OrNil variants.
	PreventEmptyResults
)

// ListOptions adjust scalar list and scalar dictionary materializers.
type ListOptions uint8

const (
	// DiscardNulls skips NULL values.
	DiscardNulls ListOptions = 1 << iota
	// FailOnNull turns a NULL value into ErrMissingData.
	FailOnNull
)

// DictionaryOptions adjust dictionary materializers.
type DictionaryOptions uint8

const (
	// DiscardDuplicates lets a later row replace an earlier one with the same
	// key. Without it a duplicate key is a mapping error.
	DiscardDuplicates DictionaryOptions = 1 << iota
)

// Option configures a materializer.
type Option func(*options)

type options struct {
	include    []string
	includeSet bool
	exclude    []string
	excludeSet bool
	ctorTypes  []reflect.Type
	ctorSet    bool
	infer      bool
	populate   bool
	row        RowOptions
	list       ListOptions
	dict       DictionaryOptions
	detail     []Option
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) hasConstructor() bool {
	return o.ctorSet || o.infer
}

// IncludeColumns limits the materializer to exactly the named columns.
// Passing no names still counts as setting the list.
func IncludeColumns(names ...string) Option {
	return func(o *options) {
		o.include = append(o.include, names...)
		o.includeSet = true
	}
}

// ExcludeColumns requests every mapped column except the named ones.
// Passing no names still counts as setting the list.
func ExcludeColumns(names ...string) Option {
	return func(o *options) {
		o.exclude = append(o.exclude, names...)
		o.excludeSet = true
	}
}

// WithConstructor selects the registered constructor whose parameter types
// are exactly types.
func WithConstructor(types ...reflect.Type) Option {
	return func(o *options) {
		o.ctorTypes = types
		o.ctorSet = true
	}
}

// InferConstructor selects the only registered non-default constructor.
func InferConstructor() Option {
	return func(o *options) { o.infer = true }
}

// PopulateProperties also populates mapped properties after a non-default
// constructor has run.
func PopulateProperties() Option {
	return func(o *options) { o.populate = true }
}

// WithRowOptions sets single-row behaviour.
func WithRowOptions(ro RowOptions) Option {
	return func(o *options) { o.row |= ro }
}

// WithListOptions sets NULL handling for scalar lists and dictionaries.
func WithListOptions(lo ListOptions) Option {
	return func(o *options) { o.list |= lo }
}

// WithDictionaryOptions sets duplicate key handling.
func WithDictionaryOptions(do DictionaryOptions) Option {
	return func(o *options) { o.dict |= do }
}

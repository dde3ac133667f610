package chain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// planCaches sizes the plan cache of every mapping created by NewMapping.
var planCaches = struct {
	sync.Mutex
	size     int
	mappings []interface{ SetPlanCacheSize(n int) }
}{size: 64}

// DefaultPlanCacheSize returns the number of result schemas a new Mapping
// remembers binding plans for.
func DefaultPlanCacheSize() int {
	planCaches.Lock()
	defer planCaches.Unlock()
	return planCaches.size
}

// ResizePlanCaches sets the plan cache size of every mapping, including those
// already created, and of mappings created later.
func ResizePlanCaches(n int) {
	n = max(n, 1)
	planCaches.Lock()
	defer planCaches.Unlock()
	planCaches.size = n
	for _, m := range planCaches.mappings {
		m.SetPlanCacheSize(n)
	}
}

// ChangeTracker is implemented by types that record modifications. Freshly
// loaded objects have AcceptChanges called after their properties are
// populated.
type ChangeTracker interface {
	AcceptChanges()
}

// Mapping describes how result columns map onto a T. Mappings are built once,
// usually in a package level var, and are safe for concurrent use after
// registration is complete.
//
//	var people = chain.NewMapping("Person", func() *Person { return new(Person) })
//
//	func init() {
//		chain.Field(people, "id", func(p *Person) *int64 { return &p.ID })
//		chain.NullableField(people, "nickname", func(p *Person) **string { return &p.Nickname })
//		chain.Decompose(people, "home_", addresses, func(p *Person) **Address { return &p.Home })
//	}
type Mapping[T any] struct {
	name         string
	newFn        func() *T
	fields       []fieldBinding[T]
	byName       map[string]int
	decomposed   []decomposition[T]
	constructors []*Constructor[T]
	plans        *lru.Cache[planKey, *plan[T]]
	planSize     atomic.Int64
}

type fieldBinding[T any] struct {
	column string
	set    func(obj *T, v any) error
	get    func(obj *T) any
}

type decomposition[T any] struct {
	prefix  string
	columns func() []string
	bind    func(schema *Schema, prefix string) (populator[T], bool, error)
	values  func(obj *T, prefix string, out map[string]any)
}

// NewMapping creates a mapping for T. newFn is the zero-argument constructor
// and may be nil when T is only ever built through a registered Constructor.
func NewMapping[T any](name string, newFn func() *T) *Mapping[T] {
	if name == "" {
		name = reflect.TypeFor[T]().String()
	}
	planCaches.Lock()
	defer planCaches.Unlock()
	plans, err := lru.New[planKey, *plan[T]](planCaches.size)
	if err != nil {
		panic(err)
	}
	m := &Mapping[T]{
		name:   name,
		newFn:  newFn,
		byName: make(map[string]int),
		plans:  plans,
	}
	m.planSize.Store(int64(planCaches.size))
	planCaches.mappings = append(planCaches.mappings, m)
	return m
}

// SetPlanCacheSize changes how many result schemas m remembers plans for.
func (m *Mapping[T]) SetPlanCacheSize(n int) {
	n = max(n, 1)
	m.plans.Resize(n)
	m.planSize.Store(int64(n))
}

// PlanCacheSize returns how many result schemas m remembers plans for.
func (m *Mapping[T]) PlanCacheSize() int { return int(m.planSize.Load()) }

// Name returns the diagnostic name of the mapped type.
func (m *Mapping[T]) Name() string { return m.name }

// Columns returns every mapped column, including the prefixed columns of
// decomposed objects, in registration order.
func (m *Mapping[T]) Columns() []string {
	cols := make([]string, 0, len(m.fields))
	for _, f := range m.fields {
		cols = append(cols, f.column)
	}
	for _, d := range m.decomposed {
		for _, c := range d.columns() {
			cols = append(cols, d.prefix+c)
		}
	}
	return cols
}

// HasColumn reports whether name is one of Columns, ignoring case.
func (m *Mapping[T]) HasColumn(name string) bool {
	for _, c := range m.Columns() {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// Values reads the mapped properties of obj back into a column keyed map.
// Decomposed objects that are nil contribute nothing.
func (m *Mapping[T]) Values(obj *T) map[string]any {
	out := make(map[string]any, len(m.fields))
	m.values(obj, "", out)
	return out
}

func (m *Mapping[T]) values(obj *T, prefix string, out map[string]any) {
	for _, f := range m.fields {
		out[prefix+f.column] = f.get(obj)
	}
	for _, d := range m.decomposed {
		d.values(obj, prefix+d.prefix, out)
	}
}

func (m *Mapping[T]) addField(f fieldBinding[T]) {
	key := strings.ToLower(f.column)
	if i, ok := m.byName[key]; ok {
		m.fields[i] = f
		return
	}
	m.byName[key] = len(m.fields)
	m.fields = append(m.fields, f)
	m.plans.Purge()
}

// Field maps column to the property returned by ptr. A NULL is accepted only
// when D can hold one (pointers, slices, maps, interfaces and sql.Scanner
// types such as sql.NullString).
func Field[T, D any](m *Mapping[T], column string, ptr func(*T) *D) {
	m.addField(fieldBinding[T]{
		column: column,
		set:    func(obj *T, v any) error { return assign(ptr(obj), v) },
		get:    func(obj *T) any { return *ptr(obj) },
	})
}

// NullableField maps column to a pointer property; NULL stores nil and any
// other value is converted to D.
func NullableField[T, D any](m *Mapping[T], column string, ptr func(*T) **D) {
	m.addField(fieldBinding[T]{
		column: column,
		set:    func(obj *T, v any) error { return assignPointer(ptr(obj), v) },
		get: func(obj *T) any {
			if p := *ptr(obj); p != nil {
				return *p
			}
			return nil
		},
	})
}

// Decompose maps the columns of nested, each prefixed with prefix, onto the
// object returned by ptr. When the object is nil and at least one prefixed
// column is in the result, it is created with nested's zero-argument
// constructor.
func Decompose[T, N any](m *Mapping[T], prefix string, nested *Mapping[N], ptr func(*T) **N) {
	m.decomposed = append(m.decomposed, decomposition[T]{
		prefix:  prefix,
		columns: nested.Columns,
		bind: func(schema *Schema, prefix string) (populator[T], bool, error) {
			inner, ok, err := nested.bindProperties(schema, prefix)
			if err != nil || !ok {
				return nil, ok, err
			}
			if nested.newFn == nil {
				return nil, false, mappingErrorf("%s has no zero-argument constructor for decomposition %q", nested.name, prefix)
			}
			return func(obj *T, row Row) error {
				p := ptr(obj)
				if *p == nil {
					*p = nested.newFn()
				}
				if err := inner(*p, row); err != nil {
					return err
				}
				if ct, ok := any(*p).(ChangeTracker); ok {
					ct.AcceptChanges()
				}
				return nil
			}, true, nil
		},
		values: func(obj *T, prefix string, out map[string]any) {
			if p := *ptr(obj); p != nil {
				nested.values(p, prefix, out)
			}
		},
	})
	m.plans.Purge()
}

// populator fills the properties of an existing object from a row.
type populator[T any] func(obj *T, row Row) error

// bindProperties resolves property ordinals against schema. ok is false when
// no mapped column is present.
func (m *Mapping[T]) bindProperties(schema *Schema, prefix string) (populator[T], bool, error) {
	type bound struct {
		ordinal int
		field   fieldBinding[T]
	}
	var fields []bound
	for _, f := range m.fields {
		if i, ok := schema.Ordinal(prefix + f.column); ok {
			fields = append(fields, bound{ordinal: i, field: f})
		}
	}
	var nested []populator[T]
	for _, d := range m.decomposed {
		p, ok, err := d.bind(schema, prefix+d.prefix)
		if err != nil {
			return nil, false, err
		}
		if ok {
			nested = append(nested, p)
		}
	}
	if len(fields) == 0 && len(nested) == 0 {
		return nil, false, nil
	}
	name := m.name
	return func(obj *T, row Row) error {
		for _, b := range fields {
			if err := b.field.set(obj, row.values[b.ordinal]); err != nil {
				return annotate(err, name, row.schema.columns[b.ordinal].Name)
			}
		}
		for _, p := range nested {
			if err := p(obj, row); err != nil {
				return err
			}
		}
		return nil
	}, true, nil
}

// annotate fills in the type and column of a MappingError raised by a setter.
func annotate(err error, typeName, column string) error {
	var me *MappingError
	if errors.As(err, &me) {
		c := *me
		if c.Type == "" {
			c.Type = typeName
		}
		if c.Column == "" {
			c.Column = column
		}
		return &c
	}
	return &MappingError{Type: typeName, Column: column, Cause: err}
}

// Parameter is one constructor argument, matched to a column by name.
type Parameter struct {
	Name   string
	Type   reflect.Type
	coerce func(v any) (any, error)
}

func param[A any](name string) Parameter {
	return Parameter{
		Name: name,
		Type: reflect.TypeFor[A](),
		coerce: func(v any) (any, error) {
			var a A
			err := assign(&a, v)
			return a, err
		},
	}
}

// arg unboxes a coerced argument; a nil interface yields the zero A.
func arg[A any](v any) A {
	a, _ := v.(A)
	return a
}

// Constructor is a registered non-default constructor of T.
type Constructor[T any] struct {
	params []Parameter
	invoke func(args []any) *T
}

// Parameters returns the constructor's parameters in order.
func (c *Constructor[T]) Parameters() []Parameter {
	return append([]Parameter(nil), c.params...)
}

func (c *Constructor[T]) signature() string {
	types := make([]string, len(c.params))
	for i, p := range c.params {
		types[i] = p.Type.String()
	}
	return "(" + strings.Join(types, ", ") + ")"
}

func (c *Constructor[T]) matches(types []reflect.Type) bool {
	if len(types) != len(c.params) {
		return false
	}
	for i, t := range types {
		if c.params[i].Type != t {
			return false
		}
	}
	return true
}

func (m *Mapping[T]) addConstructor(c *Constructor[T]) {
	m.constructors = append(m.constructors, c)
	m.plans.Purge()
}

// Constructor1 registers a one-parameter constructor.
func Constructor1[T, A any](m *Mapping[T], a string, fn func(A) *T) {
	m.addConstructor(&Constructor[T]{
		params: []Parameter{param[A](a)},
		invoke: func(args []any) *T { return fn(arg[A](args[0])) },
	})
}

// Constructor2 registers a two-parameter constructor.
func Constructor2[T, A, B any](m *Mapping[T], a, b string, fn func(A, B) *T) {
	m.addConstructor(&Constructor[T]{
		params: []Parameter{param[A](a), param[B](b)},
		invoke: func(args []any) *T { return fn(arg[A](args[0]), arg[B](args[1])) },
	})
}

// Constructor3 registers a three-parameter constructor.
func Constructor3[T, A, B, C any](m *Mapping[T], a, b, c string, fn func(A, B, C) *T) {
	m.addConstructor(&Constructor[T]{
		params: []Parameter{param[A](a), param[B](b), param[C](c)},
		invoke: func(args []any) *T {
			return fn(arg[A](args[0]), arg[B](args[1]), arg[C](args[2]))
		},
	})
}

// Constructor4 registers a four-parameter constructor.
func Constructor4[T, A, B, C, D any](m *Mapping[T], a, b, c, d string, fn func(A, B, C, D) *T) {
	m.addConstructor(&Constructor[T]{
		params: []Parameter{param[A](a), param[B](b), param[C](c), param[D](d)},
		invoke: func(args []any) *T {
			return fn(arg[A](args[0]), arg[B](args[1]), arg[C](args[2]), arg[D](args[3]))
		},
	})
}

// constructor resolves the constructor selected by o; nil means the
// zero-argument constructor.
func (m *Mapping[T]) constructor(o *options) (*Constructor[T], error) {
	switch {
	case o.ctorSet:
		for _, c := range m.constructors {
			if c.matches(o.ctorTypes) {
				return c, nil
			}
		}
		sig := (&Constructor[T]{params: typesAsParams(o.ctorTypes)}).signature()
		return nil, mappingErrorf("%s has no constructor with signature %s", m.name, sig)
	case o.infer:
		if len(m.constructors) != 1 {
			return nil, mappingErrorf("cannot infer constructor of %s: %d non-default constructors registered", m.name, len(m.constructors))
		}
		return m.constructors[0], nil
	}
	if m.newFn == nil {
		return nil, mappingErrorf("%s has no zero-argument constructor", m.name)
	}
	return nil, nil
}

func typesAsParams(types []reflect.Type) []Parameter {
	params := make([]Parameter, len(types))
	for i, t := range types {
		params[i] = Parameter{Type: t}
	}
	return params
}

func (m *Mapping[T]) String() string {
	return fmt.Sprintf("Mapping[%s](%d columns)", m.name, len(m.Columns()))
}

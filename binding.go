package chain

type planKey struct {
	fingerprint uint64
	ctor        int // index into Mapping.constructors, -1 for the zero-argument constructor
	populate    bool
}

// plan is a binding of a Mapping to one result schema: constructor argument
// ordinals plus the property populator. Plans are built once per schema and
// reused across readers with the same column layout.
type plan[T any] struct {
	mapping  *Mapping[T]
	ctor     *Constructor[T]
	ordinals []int
	columns  []string
	populate populator[T]
}

// bind returns the plan for schema, compiling it on first use.
func (m *Mapping[T]) bind(schema *Schema, o *options) (*plan[T], error) {
	ctor, err := m.constructor(o)
	if err != nil {
		return nil, err
	}
	key := planKey{fingerprint: schema.Fingerprint(), ctor: -1, populate: ctor == nil || o.populate}
	if ctor != nil {
		for i, c := range m.constructors {
			if c == ctor {
				key.ctor = i
			}
		}
	}
	if p, ok := m.plans.Get(key); ok {
		return p, nil
	}
	p, err := m.compile(schema, ctor, key.populate)
	if err != nil {
		return nil, err
	}
	m.plans.Add(key, p)
	return p, nil
}

func (m *Mapping[T]) compile(schema *Schema, ctor *Constructor[T], populate bool) (*plan[T], error) {
	p := &plan[T]{mapping: m, ctor: ctor}
	if ctor != nil {
		p.ordinals = make([]int, len(ctor.params))
		p.columns = make([]string, len(ctor.params))
		for i, param := range ctor.params {
			ord, ok := schema.Ordinal(param.Name)
			if !ok {
				return nil, mappingErrorf("%s constructor %s: parameter %q has no matching column", m.name, ctor.signature(), param.Name)
			}
			p.ordinals[i] = ord
			p.columns[i] = schema.columns[ord].Name
		}
	}
	if populate {
		fill, _, err := m.bindProperties(schema, "")
		if err != nil {
			return nil, err
		}
		p.populate = fill
	}
	return p, nil
}

// build constructs one object from row.
func (p *plan[T]) build(row Row) (*T, error) {
	var obj *T
	if p.ctor == nil {
		obj = p.mapping.newFn()
	} else {
		args := make([]any, len(p.ordinals))
		for i, ord := range p.ordinals {
			v, err := p.ctor.params[i].coerce(row.values[ord])
			if err != nil {
				return nil, annotate(err, p.mapping.name, p.columns[i])
			}
			args[i] = v
		}
		obj = p.ctor.invoke(args)
		if obj == nil {
			return nil, mappingErrorf("%s constructor %s returned nil", p.mapping.name, p.ctor.signature())
		}
	}
	if p.populate != nil {
		if err := p.populate(obj, row); err != nil {
			return nil, err
		}
	}
	if ct, ok := any(obj).(ChangeTracker); ok {
		ct.AcceptChanges()
	}
	return obj, nil
}

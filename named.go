package chain

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/muir/sqltoken"
)

// NamedParams reads the mapped properties of obj as named parameters.
func NamedParams[T any](m *Mapping[T], obj *T) map[string]any {
	return m.Values(obj)
}

// tokenizer configs that report :name parameters, per target bindvar type.
var namedParseConfigs = func() []sqltoken.Config {
	configs := make([]sqltoken.Config, AT+1)
	pg := sqltoken.PostgreSQLConfig()
	pg.NoticeColonWord = true
	pg.ColonWordIncludesUnicode = true
	pg.NoticeDollarNumber = false
	pg.NoticeQuestionMark = true
	configs[DOLLAR] = pg

	ora := sqltoken.OracleConfig()
	ora.ColonWordIncludesUnicode = true
	ora.NoticeQuestionMark = true
	configs[NAMED] = ora

	ssvr := sqltoken.SQLServerConfig()
	ssvr.NoticeColonWord = true
	ssvr.ColonWordIncludesUnicode = true
	ssvr.NoticeAtWord = false
	configs[AT] = ssvr

	mysql := sqltoken.MySQLConfig()
	mysql.NoticeColonWord = true
	mysql.ColonWordIncludesUnicode = true
	mysql.NoticeQuestionMark = true
	configs[QUESTION] = mysql
	configs[UNKNOWN] = mysql
	return configs
}()

// namedQuery is a query whose :name parameters were replaced by bindvars.
type namedQuery struct {
	text  string
	names []string
	// byte range of the first VALUES tuple in text, parentheses included;
	// empty when the query has none
	values struct{ start, end int }
}

// compileNamed replaces the :name parameters of query with bindType's
// bindvars. Oracle style NAMED queries keep their names.
func compileNamed(query string, bindType int) (namedQuery, error) {
	var (
		q          namedQuery
		out        strings.Builder
		seenValues bool
		inValues   bool
		depth      int
		n          int
	)
	out.Grow(len(query))
	for _, tok := range sqltoken.Tokenize(query, namedParseConfigs[bindType]) {
		switch {
		case tok.Type == sqltoken.Word && !seenValues && strings.EqualFold(tok.Text, "values"):
			// only the first VALUES list can be repeated for multi-row binds
			seenValues, inValues = true, true
		case inValues && tok.Type == sqltoken.Punctuation && tok.Text == "(":
			if depth == 0 {
				q.values.start = out.Len()
			}
			depth++
		case inValues && tok.Type == sqltoken.Punctuation && tok.Text == ")":
			depth--
			if depth == 0 {
				q.values.end = out.Len() + 1
				inValues = false
			}
		}
		if tok.Type != sqltoken.ColonWord {
			out.WriteString(tok.Text)
			continue
		}
		q.names = append(q.names, tok.Text[1:])
		switch bindType {
		case NAMED:
			out.WriteString(tok.Text)
		case DOLLAR, AT:
			n++
			out.Write(appendPlaceholder(nil, bindType, n))
		default:
			out.WriteByte('?')
		}
	}
	if inValues {
		return q, errors.New("missing closing bracket in VALUES")
	}
	q.text = out.String()
	return q, nil
}

// repeatValues returns the query text with its VALUES tuple written rows
// times, comma separated.
func (q namedQuery) repeatValues(rows int) string {
	if rows < 2 || q.values.end <= q.values.start {
		return q.text
	}
	tuple := q.text[q.values.start:q.values.end]
	var b strings.Builder
	b.Grow(len(q.text) + (len(tuple)+1)*(rows-1))
	b.WriteString(q.text[:q.values.end])
	for range rows - 1 {
		b.WriteByte(',')
		b.WriteString(tuple)
	}
	b.WriteString(q.text[q.values.end:])
	return b.String()
}

// lookupNamed returns the value of each name in arg, matching names
// case-insensitively when there is no exact key.
func lookupNamed(names []string, arg map[string]any) ([]any, error) {
	out := make([]any, 0, len(names))
	for _, name := range names {
		v, ok := arg[name]
		if !ok {
			for k, kv := range arg {
				if strings.EqualFold(k, name) {
					v, ok = kv, true
					break
				}
			}
		}
		if !ok {
			keys := make([]string, 0, len(arg))
			for k := range arg {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			return nil, fmt.Errorf("could not find name %s in [%s]", name, strings.Join(keys, " "))
		}
		out = append(out, v)
	}
	return out, nil
}

// bindRows binds one parameter map per row, repeating the VALUES tuple.
func bindRows(bindType int, query string, rows []map[string]any) (string, []any, error) {
	if len(rows) == 0 {
		return "", nil, errors.New("no rows to bind")
	}
	// compile with `?` so the repeated tuples can be renumbered by Rebind
	q, err := compileNamed(query, QUESTION)
	if err != nil {
		return "", nil, err
	}
	args := make([]any, 0, len(q.names)*len(rows))
	for _, row := range rows {
		vals, err := lookupNamed(q.names, row)
		if err != nil {
			return "", nil, err
		}
		args = append(args, vals...)
	}
	return Rebind(bindType, q.repeatValues(len(rows))), args, nil
}

// BindNamed binds a map, or a slice of maps for multi-row VALUES lists, to a
// query with named parameters using bindType's bindvars.
func BindNamed(bindType int, query string, arg any) (string, []any, error) {
	switch a := arg.(type) {
	case map[string]any:
		q, err := compileNamed(query, bindType)
		if err != nil {
			return "", nil, err
		}
		args, err := lookupNamed(q.names, a)
		if err != nil {
			return "", nil, err
		}
		return q.text, args, nil
	case []map[string]any:
		return bindRows(bindType, query, a)
	}
	return "", nil, fmt.Errorf("chain.BindNamed: unsupported argument type: %T", arg)
}

// Named binds a query with named parameters using the `?` bindvar.
func Named(query string, arg any) (string, []any, error) {
	return BindNamed(QUESTION, query, arg)
}

// NamedCommand is a command builder for SQL with :name parameters.
type NamedCommand struct {
	ds   DataSource
	text string
	arg  any
	guards
}

// NamedSQL builds a command from query and its named arguments: a
// map[string]any, a []map[string]any for multi-row VALUES, or the result of
// NamedParams. A slice bound inside IN (:name) is spread like with SQL.
func NamedSQL(ds DataSource, query string, arg any) *NamedCommand {
	return &NamedCommand{ds: ds, text: query, arg: arg}
}

// ExpectRows fails the command unless exactly n rows are affected.
func (c *NamedCommand) ExpectRows(n int64) *NamedCommand {
	c.add(ExpectRows(n))
	return c
}

// ExpectOneRow fails the command unless exactly one row is affected.
func (c *NamedCommand) ExpectOneRow() *NamedCommand { return c.ExpectRows(1) }

// DataSource returns the data source the command runs on.
func (c *NamedCommand) DataSource() DataSource { return c.ds }

// Prepare compiles the named parameters, spreads slices bound inside IN lists
// and rebinds the query for the data source's driver.
func (c *NamedCommand) Prepare(cs ColumnSource) (*ExecutionToken, error) {
	if _, err := cs.DesiredColumns(); err != nil {
		return nil, err
	}
	query, args, err := BindNamed(QUESTION, c.text, c.arg)
	if err != nil {
		return nil, configErrorf("%v", err)
	}
	if query, args, err = finish(bindTypeOf(c.ds), query, args); err != nil {
		return nil, err
	}
	t := prepareToken(c.ds, operationOf(cs), query, CommandText, args...)
	c.attach(t)
	return t, nil
}

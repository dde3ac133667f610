package chain

import (
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/muir/sqltoken"
)

// Bindvar types supported by Rebind and BindNamed.
const (
	UNKNOWN = iota
	QUESTION
	DOLLAR
	NAMED
	AT
)

var defaultBinds = map[int][]string{
	DOLLAR:   {"postgres", "pgx", "pq-timeouts", "cloudsqlpostgres", "ql", "nrpostgres", "cockroach"},
	QUESTION: {"mysql", "sqlite3", "nrmysql", "nrsqlite3"},
	NAMED:    {"oci8", "ora", "goracle", "godror"},
	AT:       {"sqlserver", "azuresql"},
}

// binds maps driver names to bindvar types.
var binds sync.Map

func init() {
	for bindType, names := range defaultBinds {
		for _, name := range names {
			BindDriver(name, bindType)
		}
	}
}

// BindType returns the bindvar type of driverName, UNKNOWN when it was never
// registered.
func BindType(driverName string) int {
	if v, ok := binds.Load(driverName); ok {
		return v.(int)
	}
	return UNKNOWN
}

// BindDriver sets the bindvar type used for driverName.
func BindDriver(driverName string, bindType int) {
	binds.Store(driverName, bindType)
}

// tokenizer configs that report `?` as a bindvar, per target bindvar type.
var rebindConfigs = func() []sqltoken.Config {
	configs := make([]sqltoken.Config, AT+1)

	pg := sqltoken.PostgreSQLConfig()
	pg.NoticeQuestionMark = true
	pg.NoticeDollarNumber = false
	pg.SeparatePunctuation = true
	configs[DOLLAR] = pg

	ora := sqltoken.OracleConfig()
	ora.NoticeColonWord = false
	ora.NoticeQuestionMark = true
	ora.SeparatePunctuation = true
	configs[NAMED] = ora

	ssvr := sqltoken.SQLServerConfig()
	ssvr.NoticeAtWord = false
	ssvr.NoticeQuestionMark = true
	ssvr.SeparatePunctuation = true
	configs[AT] = ssvr
	return configs
}()

// inConfig tokenizes queries for In; only `?`, words and parentheses matter.
var inConfig = rebindConfigs[DOLLAR]

// appendPlaceholder appends the n-th (1-based) positional bindvar of
// bindType to b.
func appendPlaceholder(b []byte, bindType, n int) []byte {
	switch bindType {
	case DOLLAR:
		b = append(b, '$')
	case NAMED:
		b = append(b, ":arg"...)
	case AT:
		b = append(b, "@p"...)
	default:
		return append(b, '?')
	}
	return strconv.AppendInt(b, int64(n), 10)
}

// Rebind rewrites the `?` bindvars of query for bindType. Question marks in
// string literals, identifiers and comments are left alone.
func Rebind(bindType int, query string) string {
	if bindType == QUESTION || bindType == UNKNOWN {
		return query
	}
	out := make([]byte, 0, len(query)+10)
	n := 0
	for _, tok := range sqltoken.Tokenize(query, rebindConfigs[bindType]) {
		if tok.Type != sqltoken.QuestionMark {
			out = append(out, tok.Text...)
			continue
		}
		n++
		out = appendPlaceholder(out, bindType, n)
	}
	return string(out)
}

// inArg is one argument of In. list is valid when the argument is a slice,
// which is spread when it is bound inside an IN (?) list.
type inArg struct {
	value any
	list  reflect.Value
}

var (
	bytesType  = reflect.TypeFor[[]byte]()
	valuerType = reflect.TypeFor[driver.Valuer]()
)

// spreadable returns the slice behind arg, following pointers. []byte is a
// driver value and is never spread.
func spreadable(arg any) (reflect.Value, bool) {
	if arg == nil {
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(arg)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice || v.Type() == bytesType {
		return reflect.Value{}, false
	}
	return v, true
}

// valuerValue calls vr.Value, treating a nil pointer whose element type
// implements driver.Valuer as NULL rather than panicking in the generated
// pointer method.
func valuerValue(vr driver.Valuer) (driver.Value, error) {
	rv := reflect.ValueOf(vr)
	if rv.Kind() == reflect.Pointer && rv.IsNil() && rv.Type().Elem().Implements(valuerType) {
		return nil, nil
	}
	return vr.Value()
}

// inArgs resolves driver.Valuers and finds the slices among args. total is the
// argument count after spreading.
func inArgs(args []any) (out []inArg, total int, spread bool, err error) {
	out = make([]inArg, len(args))
	for i, arg := range args {
		if vr, ok := arg.(driver.Valuer); ok {
			if arg, err = valuerValue(vr); err != nil {
				return nil, 0, false, err
			}
		}
		out[i].value = arg
		if list, ok := spreadable(arg); ok {
			if list.Len() == 0 {
				return nil, 0, false, configErrorf("empty slice passed to an IN (?) list")
			}
			out[i].list = list
			total += list.Len()
			spread = true
			continue
		}
		total++
	}
	return out, total, spread, nil
}

// followsIn reports whether the parenthesis at pos opens an IN list.
func followsIn(tokens []sqltoken.Token, pos int) bool {
	for i := pos - 1; i >= 0; i-- {
		if tokens[i].Type == sqltoken.Word {
			return strings.EqualFold(tokens[i].Text, "in")
		}
	}
	return false
}

// In spreads slice arguments bound inside IN (?) over one `?` per element. The
// query uses, and the result keeps, the `?` bindvar. Without slice arguments
// the query and args are returned unchanged.
func In(query string, args ...any) (string, []any, error) {
	metas, total, spread, err := inArgs(args)
	if err != nil || !spread {
		return query, args, err
	}

	var b strings.Builder
	b.Grow(len(query) + 3*total)
	flat := make([]any, 0, total)
	tokens := sqltoken.Tokenize(query, inConfig)
	inList := false
	next := 0
	for pos, tok := range tokens {
		switch {
		case tok.Type == sqltoken.Punctuation && tok.Text == "(":
			if !inList {
				inList = followsIn(tokens, pos)
			}
		case tok.Type == sqltoken.Punctuation && tok.Text == ")":
			inList = false
		case tok.Type == sqltoken.QuestionMark:
			if next == len(metas) {
				return "", nil, configErrorf("query has more bindvars than the %d arguments given", len(metas))
			}
			a := metas[next]
			next++
			if !inList || !a.list.IsValid() {
				flat = append(flat, a.value)
				break
			}
			n := a.list.Len()
			b.WriteString("?" + strings.Repeat(", ?", n-1))
			if s, ok := a.list.Interface().([]any); ok {
				flat = append(flat, s...)
				continue
			}
			for i := range n {
				flat = append(flat, a.list.Index(i).Interface())
			}
			continue
		}
		b.WriteString(tok.Text)
	}
	if next < len(metas) {
		return "", nil, configErrorf("query has %d bindvars for %d arguments", next, len(metas))
	}
	return b.String(), flat, nil
}

// QuoteIdentifier quotes a possibly schema-qualified identifier in the style
// of bindType's databases: backticks for QUESTION, brackets for AT and double
// quotes otherwise.
func QuoteIdentifier(bindType int, name string) string {
	open, close := `"`, `"`
	switch bindType {
	case QUESTION:
		open, close = "`", "`"
	case AT:
		open, close = "[", "]"
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		p = strings.ReplaceAll(p, close, close+close)
		parts[i] = open + p + close
	}
	return strings.Join(parts, ".")
}

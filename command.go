package chain

import (
	"sort"
	"strconv"
	"strings"
)

func bindTypeOf(ds DataSource) int {
	if b, ok := ds.(binder); ok {
		return BindType(b.DriverName())
	}
	return UNKNOWN
}

// SQLCommand is a command builder for literal SQL using `?` bindvars. Slice
// arguments inside IN (?) are expanded and the query is rebound for the
// driver. The materializer's projection is not applied to literal SQL.
type SQLCommand struct {
	ds   DataSource
	text string
	args []any
	guards
}

// SQL builds a command from query and args.
func SQL(ds DataSource, query string, args ...any) *SQLCommand {
	return &SQLCommand{ds: ds, text: query, args: args}
}

// ExpectRows fails the command unless exactly n rows are affected.
func (c *SQLCommand) ExpectRows(n int64) *SQLCommand {
	c.add(ExpectRows(n))
	return c
}

// ExpectOneRow fails the command unless exactly one row is affected.
func (c *SQLCommand) ExpectOneRow() *SQLCommand { return c.ExpectRows(1) }

// DataSource returns the data source the command runs on.
func (c *SQLCommand) DataSource() DataSource { return c.ds }

// Prepare validates the materializer's options and builds the token.
func (c *SQLCommand) Prepare(cs ColumnSource) (*ExecutionToken, error) {
	if _, err := cs.DesiredColumns(); err != nil {
		return nil, err
	}
	query, args, err := In(c.text, c.args...)
	if err != nil {
		return nil, err
	}
	t := prepareToken(c.ds, operationOf(cs), Rebind(bindTypeOf(c.ds), query), CommandText, args...)
	c.attach(t)
	return t, nil
}

// condition is a WHERE fragment with its `?` arguments.
type condition struct {
	text string
	args []any
}

func writeWhere(b *strings.Builder, conds []condition, args []any) []any {
	for i, c := range conds {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString("(" + c.text + ")")
		args = append(args, c.args...)
	}
	return args
}

// finish expands IN lists and rebinds the query for bindType.
func finish(bindType int, query string, args []any) (string, []any, error) {
	query, args, err := In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return Rebind(bindType, query), args, nil
}

// SelectCommand builds a SELECT over one table, projecting the columns its
// materializer asks for.
type SelectCommand struct {
	ds      DataSource
	table   string
	where   []condition
	orderBy []string
	limit   int
}

// From starts a SELECT over table.
func From(ds DataSource, table string) *SelectCommand {
	return &SelectCommand{ds: ds, table: table, limit: -1}
}

// Where adds a condition; multiple conditions are combined with AND.
func (c *SelectCommand) Where(cond string, args ...any) *SelectCommand {
	c.where = append(c.where, condition{text: cond, args: args})
	return c
}

// OrderBy appends sort expressions, used verbatim.
func (c *SelectCommand) OrderBy(exprs ...string) *SelectCommand {
	c.orderBy = append(c.orderBy, exprs...)
	return c
}

// Limit caps the number of rows returned.
func (c *SelectCommand) Limit(n int) *SelectCommand {
	c.limit = n
	return c
}

// DataSource returns the data source the command runs on.
func (c *SelectCommand) DataSource() DataSource { return c.ds }

// Prepare builds the SELECT from the materializer's desired columns.
func (c *SelectCommand) Prepare(cs ColumnSource) (*ExecutionToken, error) {
	dc, err := cs.DesiredColumns()
	if err != nil {
		return nil, err
	}
	bt := bindTypeOf(c.ds)

	var b strings.Builder
	b.WriteString("SELECT ")
	if c.limit >= 0 && bt == AT {
		b.WriteString("TOP (" + strconv.Itoa(c.limit) + ") ")
	}
	b.WriteString(projection(bt, dc))
	b.WriteString(" FROM ")
	b.WriteString(QuoteIdentifier(bt, c.table))
	args := writeWhere(&b, c.where, nil)
	if len(c.orderBy) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(c.orderBy, ", "))
	}
	if c.limit >= 0 {
		switch bt {
		case AT:
		case NAMED:
			b.WriteString(" FETCH FIRST " + strconv.Itoa(c.limit) + " ROWS ONLY")
		default:
			b.WriteString(" LIMIT " + strconv.Itoa(c.limit))
		}
	}
	query, args, err := finish(bt, b.String(), args)
	if err != nil {
		return nil, err
	}
	return prepareToken(c.ds, operationOf(cs), query, CommandText, args...), nil
}

func projection(bindType int, dc DesiredColumns) string {
	if len(dc.Names) == 0 {
		return "*"
	}
	cols := make([]string, len(dc.Names))
	for i, n := range dc.Names {
		cols[i] = QuoteIdentifier(bindType, n)
	}
	return strings.Join(cols, ", ")
}

// requireNoColumns rejects materializers that expect rows from a command that
// returns none.
func requireNoColumns(cs ColumnSource, what string) error {
	dc, err := cs.DesiredColumns()
	if err != nil {
		return err
	}
	if dc.Kind != NoColumns {
		return configErrorf("%s does not return rows; use ToNonQuery or ToRowsAffected", what)
	}
	return nil
}

// DeleteCommand builds a DELETE with optional row-count guards.
type DeleteCommand struct {
	ds    DataSource
	table string
	where []condition
	guards
}

// DeleteFrom starts a DELETE on table.
func DeleteFrom(ds DataSource, table string) *DeleteCommand {
	return &DeleteCommand{ds: ds, table: table}
}

// Where adds a condition; multiple conditions are combined with AND.
func (c *DeleteCommand) Where(cond string, args ...any) *DeleteCommand {
	c.where = append(c.where, condition{text: cond, args: args})
	return c
}

// ExpectRows fails the command unless exactly n rows are deleted.
func (c *DeleteCommand) ExpectRows(n int64) *DeleteCommand {
	c.add(ExpectRows(n))
	return c
}

// ExpectOneRow fails the command unless exactly one row is deleted.
func (c *DeleteCommand) ExpectOneRow() *DeleteCommand { return c.ExpectRows(1) }

// DataSource returns the data source the command runs on.
func (c *DeleteCommand) DataSource() DataSource { return c.ds }

// Prepare builds the DELETE.
func (c *DeleteCommand) Prepare(cs ColumnSource) (*ExecutionToken, error) {
	if err := requireNoColumns(cs, "DELETE"); err != nil {
		return nil, err
	}
	bt := bindTypeOf(c.ds)
	var b strings.Builder
	b.WriteString("DELETE FROM " + QuoteIdentifier(bt, c.table))
	args := writeWhere(&b, c.where, nil)
	query, args, err := finish(bt, b.String(), args)
	if err != nil {
		return nil, err
	}
	t := prepareToken(c.ds, operationOf(cs), query, CommandText, args...)
	c.attach(t)
	return t, nil
}

// UpdateCommand builds an UPDATE with optional row-count guards.
type UpdateCommand struct {
	ds     DataSource
	table  string
	sets   []string
	values []any
	where  []condition
	guards
}

// Update starts an UPDATE on table.
func Update(ds DataSource, table string) *UpdateCommand {
	return &UpdateCommand{ds: ds, table: table}
}

// Set assigns value to column.
func (c *UpdateCommand) Set(column string, value any) *UpdateCommand {
	c.sets = append(c.sets, column)
	c.values = append(c.values, value)
	return c
}

// SetValues assigns every entry of values, in column name order. Use it with
// NamedParams to write an object back.
func (c *UpdateCommand) SetValues(values map[string]any) *UpdateCommand {
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	for _, col := range cols {
		c.Set(col, values[col])
	}
	return c
}

// Where adds a condition; multiple conditions are combined with AND.
func (c *UpdateCommand) Where(cond string, args ...any) *UpdateCommand {
	c.where = append(c.where, condition{text: cond, args: args})
	return c
}

// ExpectRows fails the command unless exactly n rows are updated.
func (c *UpdateCommand) ExpectRows(n int64) *UpdateCommand {
	c.add(ExpectRows(n))
	return c
}

// ExpectOneRow fails the command unless exactly one row is updated.
func (c *UpdateCommand) ExpectOneRow() *UpdateCommand { return c.ExpectRows(1) }

// DataSource returns the data source the command runs on.
func (c *UpdateCommand) DataSource() DataSource { return c.ds }

// Prepare builds the UPDATE.
func (c *UpdateCommand) Prepare(cs ColumnSource) (*ExecutionToken, error) {
	if err := requireNoColumns(cs, "UPDATE"); err != nil {
		return nil, err
	}
	if len(c.sets) == 0 {
		return nil, configErrorf("UPDATE %s has no assignments", c.table)
	}
	bt := bindTypeOf(c.ds)
	var b strings.Builder
	b.WriteString("UPDATE " + QuoteIdentifier(bt, c.table) + " SET ")
	for i, col := range c.sets {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(QuoteIdentifier(bt, col) + " = ?")
	}
	args := writeWhere(&b, c.where, append([]any(nil), c.values...))
	query, args, err := finish(bt, b.String(), args)
	if err != nil {
		return nil, err
	}
	t := prepareToken(c.ds, operationOf(cs), query, CommandText, args...)
	c.attach(t)
	return t, nil
}

// ProcedureCommand calls a stored procedure.
type ProcedureCommand struct {
	ds   DataSource
	name string
	args []any
	guards
}

// Procedure builds a call of the stored procedure name with positional args.
func Procedure(ds DataSource, name string, args ...any) *ProcedureCommand {
	return &ProcedureCommand{ds: ds, name: name, args: args}
}

// ExpectRows fails the call unless exactly n rows are affected.
func (c *ProcedureCommand) ExpectRows(n int64) *ProcedureCommand {
	c.add(ExpectRows(n))
	return c
}

// DataSource returns the data source the command runs on.
func (c *ProcedureCommand) DataSource() DataSource { return c.ds }

// Prepare builds the call statement for the driver.
func (c *ProcedureCommand) Prepare(cs ColumnSource) (*ExecutionToken, error) {
	if _, err := cs.DesiredColumns(); err != nil {
		return nil, err
	}
	bt := bindTypeOf(c.ds)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(c.args)), ", ")
	var query string
	if bt == AT {
		query = "EXEC " + QuoteIdentifier(bt, c.name) + " " + marks
	} else {
		query = "CALL " + QuoteIdentifier(bt, c.name) + "(" + marks + ")"
	}
	t := prepareToken(c.ds, operationOf(cs), Rebind(bt, strings.TrimSpace(query)), StoredProcedure, c.args...)
	c.attach(t)
	return t, nil
}

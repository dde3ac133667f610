// Package chain materializes database/sql results into typed Go values.
//
// A command builder (SQL, NamedSQL, From, Update, DeleteFrom, Procedure)
// describes what to run against a DataSource. A materializer (ToScalar,
// ToObject, ToList, ToDictionary, ToMasterDetail, ToStream, ToTable,
// ToNonQuery and their variants) describes what to build from the result.
// The builder asks the materializer which columns it needs before any SQL is
// generated, so From projects only mapped columns and an invalid option
// combination fails without touching the database.
//
// Objects are mapped at registration time rather than through struct tags:
//
//	var people = chain.NewMapping("Person", func() *Person { return new(Person) })
//
//	func init() {
//		chain.Field(people, "id", func(p *Person) *int64 { return &p.ID })
//		chain.Field(people, "name", func(p *Person) *string { return &p.Name })
//	}
//
//	ds, err := chain.Connect(ctx, "sqlite3", dsn)
//	...
//	adults, err := chain.ToList(chain.From(ds, "person").Where("age >= ?", 18), people).ExecuteContext(ctx)
//
// Every execution fires ExecutionEvents to the data source's listeners and,
// unless suppressed, to an EventBus. Errors are classified with sentinels such
// as ErrMissingData, ErrUnexpectedData, ErrMapping and ErrCanceled.
package chain

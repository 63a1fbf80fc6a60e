package ddl

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, INTEGER, DATE, TEXT[])
//   - Nullable: whether NULL is allowed
//
// Keys are never declared inline; the integrity stages add them after the
// load.
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableDef holds the fully-qualified table name (FQN) and an ordered list of
// columns. The FQN is expected in dotted form (e.g., "rfb.empresas").
//
// Unlogged renders CREATE UNLOGGED TABLE; the load tables skip the WAL until
// SetLoggedSQL is issued after the constraints are in place.
type TableDef struct {
	FQN      string
	Columns  []ColumnDef
	Unlogged bool
}

// Package database opens the SQL connection behind the SQL target store.
//
// It wraps GORM and configures either MySQL or SQLite from the
// application's configuration.
//
// # Connect
//
// Connect selects the dialector from Config.Driver, applies pool settings
// and pings the database before returning it. SQLite is pinned to a single
// connection so that ":memory:" databases are shared by every query.
//
// # Schema Inspection
//
// GetTableColumns lists the columns of a table for both dialects. The
// validate command uses it to confirm the documents table carries the
// columns the SQL store writes.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return err
//	}
//
//	columns, err := database.GetTableColumns(db, "documents")
package database

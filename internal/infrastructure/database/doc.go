// Package database provides SQLite connectivity for the command delivery
// service.
//
// The database holds the device resolver tables (devices, assignments,
// commands) and the invocation outcome log. It is opened once at startup
// and shared by the device registry and the outcome store.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive. Each version has an .up.sql and a .down.sql file
// embedded by the migrations package.
package database

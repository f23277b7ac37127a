// Package database provides SQLite connectivity for Lumen Core.
//
// Lumen keeps a small amount of durable state: the paired bridge record and
// its application key, written after a successful pairing so later starts
// resume without rediscovery. SQLite is a deliberate fit for that - a single
// local file, no server, owner-only permissions because the file holds
// credentials.
//
// # Features
//
//   - WAL mode for concurrent reads during writes
//   - Embedded schema migrations (see the migrations package)
//   - Health checks for startup verification
//   - Busy timeout handling for lock contention
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database

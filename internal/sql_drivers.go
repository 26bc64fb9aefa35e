package internal

import (
	// Blank imports register the database drivers the sql and river export
	// drivers open connections with.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

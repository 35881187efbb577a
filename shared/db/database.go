package db

import (
	"database/sql"
)

// Database is a connection that runs its own migrations on Connect.
type Database interface {
	Connect() error
	Close() error
	DB() *sql.DB
}

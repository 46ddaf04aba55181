package database

import "database/sql"

// Executor abstracts *sql.DB and *sql.Tx so repository methods can run
// either standalone or inside a caller-owned transaction. Ledger mutations
// always receive a *sql.Tx; reads may use either.
type Executor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

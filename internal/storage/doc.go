// Package storage persists what outlives a single process: the archived
// outcome log (PostgreSQL) and the column preferences (SQLite or memory).
package storage

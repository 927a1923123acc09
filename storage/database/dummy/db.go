package dummydb

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
	"github.com/fantakombat/backend/core/user"
)

type (
	// DB is an in-memory store. Tables are slices kept in insertion order.
	DB struct {
		mu sync.RWMutex
		tables
	}

	tables struct {
		users       []user.User
		courses     []course.Course
		years       []course.AcademicYear
		enrollments []course.Enrollment
		actions     []course.Action
		lessons     []course.Lesson
		presences   []scoring.Presence
		scores      []scoring.Score
	}

	txKey struct{ db *DB }
)

var (
	_ core.Transactor = (*DB)(nil) // interface compliance check
	_ core.Pinger     = (*DB)(nil)
)

func Open() *DB {
	return new(DB)
}

func (db *DB) PingContext(context.Context) error { return nil }

func (db *DB) Close() error { return nil }

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = tables{}
}

// InTx runs fn holding the store's write lock. Tables are restored if fn fails or panics.
// Repositories called with the ctx handed to fn do not lock again.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if db.inTx(ctx) { // nested
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.tables.clone()
	defer func() {
		if p := recover(); p != nil {
			db.tables = snapshot
			err = fmt.Errorf("transaction panicked: %v", p)
			return
		}
		if err != nil {
			db.tables = snapshot
		}
	}()
	return fn(context.WithValue(ctx, txKey{db}, true))
}

func (db *DB) inTx(ctx context.Context) bool {
	in, _ := ctx.Value(txKey{db}).(bool)
	return in
}

// read locks the store for reading unless ctx carries a transaction. Call the returned func to unlock.
func (db *DB) read(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.RLock()
	return db.mu.RUnlock
}

// write locks the store for writing unless ctx carries a transaction. Call the returned func to unlock.
func (db *DB) write(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (t tables) clone() tables {
	return tables{
		users:       append([]user.User(nil), t.users...),
		courses:     append([]course.Course(nil), t.courses...),
		years:       append([]course.AcademicYear(nil), t.years...),
		enrollments: append([]course.Enrollment(nil), t.enrollments...),
		actions:     append([]course.Action(nil), t.actions...),
		lessons:     append([]course.Lesson(nil), t.lessons...),
		presences:   append([]scoring.Presence(nil), t.presences...),
		scores:      append([]scoring.Score(nil), t.scores...),
	}
}

func newID() string {
	return uuid.New().String()
}

func contains(strs []string, s string) bool {
	for _, str := range strs {
		if str == s {
			return true
		}
	}
	return false
}

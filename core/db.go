package core

import "context"

type (
	// Transactor runs units of work atomically.
	// Repositories called with the ctx handed to fn take part in the same transaction.
	// Any error returned by fn (or a panic) rolls the whole unit back.
	Transactor interface {
		InTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	Pinger interface {
		PingContext(ctx context.Context) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

package storage

import (
	"github.com/md-rashed-zaman/specialistbook/libs/db"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/outbox"
)

// Store is the Postgres implementation of the booking service persistence.
// Writes that other services care about add an outbox event in the same
// transaction.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewStore(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

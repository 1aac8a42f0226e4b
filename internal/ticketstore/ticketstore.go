// Package ticketstore gives the ticket classifier's output a persistence
// home. Persisting ticket/credit records is an out-of-scope collaborator:
// the classifier hands each classification to a Store just before the
// webhook PUT, whatever the PUT's outcome, so this package stays a thin interface
// with a no-op default and an optional Postgres-backed implementation.
package ticketstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llmgate/llmgate/pkg/models"
)

// Store persists ticket classifications. Implementations must not block the
// classifier's webhook delivery on failure; callers log and swallow errors.
type Store interface {
	SaveClassification(ctx context.Context, c *models.TicketClassification) error
	Close()
}

// NoopStore is the zero-config default: classifications are produced and
// PUT to the webhook but never persisted locally.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (NoopStore) SaveClassification(ctx context.Context, c *models.TicketClassification) error {
	return nil
}

func (NoopStore) Close() {}

// PostgresStore persists classifications to a ticket_classifications table.
// Callers are expected to have already run the corresponding migration;
// this package does not manage schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveClassification(ctx context.Context, c *models.TicketClassification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ticket_classifications (ticket_id, title, category, priority, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, c.TicketID, c.Title, c.Category, c.Priority, c.Reason)
	return err
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

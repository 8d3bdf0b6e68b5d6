package appctx

import (
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AppContext is the shared process-wide context handed to every worker.
// Workers treat it as read-only.
type AppContext struct {
	pg *postgres.Client
}

// New creates the shared application context.
func New(pg *postgres.Client) *AppContext {
	return &AppContext{pg: pg}
}

// Postgres returns the database client.
func (a *AppContext) Postgres() *postgres.Client {
	return a.pg
}

// Pool returns the shared connection pool.
func (a *AppContext) Pool() *pgxpool.Pool {
	return a.pg.Pool()
}

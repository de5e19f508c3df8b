package lane

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/laneboard/internal/tracing"
)

// PostgresClientRepository implements ClientRepository using PostgreSQL.
//
// Every mutating operation runs inside one serializable transaction that
// locks the affected rows before reading, so the snapshot the rank
// engine sees and the batch of rank writes it produces commit as a
// single unit. Concurrent moves against the same lane serialize on the
// row locks.
type PostgresClientRepository struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *Metrics
}

// NewPostgresClientRepository creates a new PostgresClientRepository.
// metrics may be nil to disable instrumentation.
func NewPostgresClientRepository(db *sql.DB, logger *slog.Logger, metrics *Metrics) *PostgresClientRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresClientRepository{db: db, logger: logger, metrics: metrics}
}

// statusOrderSQL orders lanes backlog < in-progress < complete.
const statusOrderSQL = `CASE status WHEN 'backlog' THEN 0 WHEN 'in-progress' THEN 1 ELSE 2 END`

const selectColumns = `id, name, status, priority, created_at, updated_at`

// List returns the full snapshot ordered by (status, priority).
func (r *PostgresClientRepository) List(ctx context.Context) ([]Client, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "clients", tracing.DBOperationQuery)

	query := `SELECT ` + selectColumns + ` FROM clients ORDER BY ` + statusOrderSQL + `, priority`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients, err := scanClients(rows)
	endSpan(err)
	return clients, err
}

// ListByStatus returns one lane ordered by priority.
func (r *PostgresClientRepository) ListByStatus(ctx context.Context, status Status) ([]Client, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "clients", tracing.DBOperationQuery)

	query := `SELECT ` + selectColumns + ` FROM clients WHERE status = $1 ORDER BY priority`
	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to list clients by status: %w", err)
	}
	defer rows.Close()

	clients, err := scanClients(rows)
	endSpan(err)
	return clients, err
}

// Get retrieves a single record. Returns ErrNotFound when absent.
func (r *PostgresClientRepository) Get(ctx context.Context, id int64) (*Client, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "clients", tracing.DBOperationQuery)

	query := `SELECT ` + selectColumns + ` FROM clients WHERE id = $1`
	var c Client
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Status, &c.Priority, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		endSpan(nil)
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	endSpan(nil)
	return &c, nil
}

// Create stores a new record at the end of its lane. The lane size read
// and the insert share one serializable transaction so concurrent
// creates in the same lane cannot claim the same priority.
func (r *PostgresClientRepository) Create(ctx context.Context, name string, status Status) (*Client, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "clients", tracing.DBOperationInsert)

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, r.logger)

	// Priorities are gap-free, so MAX(priority) is the lane size.
	var laneSize int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(priority), 0) FROM clients WHERE status = $1`, string(status)).Scan(&laneSize)
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to size lane: %w", err)
	}

	var c Client
	err = tx.QueryRowContext(ctx,
		`INSERT INTO clients (name, status, priority, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 RETURNING `+selectColumns,
		name, string(status), laneSize+1,
	).Scan(&c.ID, &c.Name, &c.Status, &c.Priority, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to insert client: %w", err)
	}

	if err := tx.Commit(); err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	endSpan(nil)

	r.logger.Info("client created",
		slog.Int64("client_id", c.ID),
		slog.String("status", string(c.Status)),
		slog.Int("priority", c.Priority))
	return &c, nil
}

// ApplyMove locks and reads a fresh snapshot, runs the rank engine, and
// commits the resulting rank writes in the same transaction. Any error
// rolls back with zero writes.
func (r *PostgresClientRepository) ApplyMove(ctx context.Context, move Move) ([]Client, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "clients", tracing.DBOperationUpdate)

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, r.logger)

	// Lock the whole table: the engine consumes the full snapshot and a
	// move can touch two lanes, so per-row locks on every record also
	// serialize moves against the same lanes.
	query := `SELECT ` + selectColumns + ` FROM clients ORDER BY ` + statusOrderSQL + `, priority FOR UPDATE`
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	records, err := scanClients(rows)
	rows.Close()
	if err != nil {
		endSpan(err)
		return nil, err
	}

	snapshot, changes, err := Rebalance(records, move)
	if err != nil {
		if r.metrics != nil {
			r.metrics.IncMoveErrors(moveErrorType(err))
		}
		endSpan(nil)
		return nil, err
	}

	for _, ch := range changes {
		_, err := tx.ExecContext(ctx,
			`UPDATE clients SET status = $1, priority = $2, updated_at = NOW() WHERE id = $3`,
			string(ch.Status), ch.Priority, ch.ID)
		if err != nil {
			endSpan(err)
			return nil, fmt.Errorf("failed to write rank assignment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	endSpan(nil)

	if r.metrics != nil {
		from, to := moveLanes(records, move)
		r.metrics.ObserveMove(from, to, len(changes))
		r.metrics.SetLaneSizes(snapshot)
	}
	r.logger.Info("move applied",
		slog.Int64("client_id", move.TargetID),
		slog.Int("writes", len(changes)))
	return snapshot, nil
}

// Delete removes a record and compacts its lane in one transaction.
func (r *PostgresClientRepository) Delete(ctx context.Context, id int64) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "clients", tracing.DBOperationDelete)

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		endSpan(err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, r.logger)

	var status Status
	var priority int
	err = tx.QueryRowContext(ctx,
		`SELECT status, priority FROM clients WHERE id = $1 FOR UPDATE`, id).Scan(&status, &priority)
	if errors.Is(err, sql.ErrNoRows) {
		endSpan(nil)
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		endSpan(err)
		return fmt.Errorf("failed to lock client: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id); err != nil {
		endSpan(err)
		return fmt.Errorf("failed to delete client: %w", err)
	}

	// Close the gap left in the lane; the invariant guarantees every
	// higher priority shifts down by exactly one.
	_, err = tx.ExecContext(ctx,
		`UPDATE clients SET priority = priority - 1, updated_at = NOW()
		 WHERE status = $1 AND priority > $2`,
		string(status), priority)
	if err != nil {
		endSpan(err)
		return fmt.Errorf("failed to compact lane: %w", err)
	}

	if err := tx.Commit(); err != nil {
		endSpan(err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	endSpan(nil)

	r.logger.Info("client deleted",
		slog.Int64("client_id", id),
		slog.String("status", string(status)))
	return nil
}

// scanClients drains a result set into a slice of records.
func scanClients(rows *sql.Rows) ([]Client, error) {
	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.Priority, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read client rows: %w", err)
	}
	return out, nil
}

// moveLanes resolves the source and destination lanes of an applied move
// from the pre-move snapshot.
func moveLanes(records []Client, move Move) (from, to Status) {
	for _, c := range records {
		if c.ID == move.TargetID {
			from = c.Status
			break
		}
	}
	to = from
	if move.NewStatus != nil {
		to = *move.NewStatus
	}
	return from, to
}

// moveErrorType maps an engine error to a metrics label.
func moveErrorType(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, ErrInvalidStatus):
		return ErrorTypeInvalidStatus
	case errors.Is(err, ErrInvalidPriority):
		return ErrorTypeInvalidPriority
	}
	return ErrorTypeStorage
}

// rollback attempts a rollback, ignoring the no-op after a commit.
func rollback(tx *sql.Tx, logger *slog.Logger) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
	}
}

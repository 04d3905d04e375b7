package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3" // SQLite driver

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Repository implements ports.Repository (config, signals and orders) using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/signal_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers, which the keyed order updates rely on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, now: time.Now}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist. Timestamps are stored
// as UTC unix nanoseconds so range filters compare numerically.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		numerator TEXT NOT NULL,
		denominator TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		period INTEGER NOT NULL,
		last REAL NOT NULL,
		rsi_prev REAL NOT NULL,
		rsi_curr REAL NOT NULL,
		bb_lower REAL NOT NULL,
		bb_upper REAL NOT NULL,
		direction TEXT NOT NULL,
		std_dev REAL NOT NULL,
		rsi_low REAL NOT NULL,
		rsi_high REAL NOT NULL,
		profile_index INTEGER NOT NULL,
		ruler_version TEXT NOT NULL,
		emitted_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_order_id TEXT NOT NULL UNIQUE,
		numerator TEXT NOT NULL,
		denominator TEXT NOT NULL,
		side TEXT NOT NULL,
		requested_amount REAL NOT NULL,
		exchange_order_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		fill_price REAL NULL,
		fill_amount REAL NULL,
		fill_fee REAL NULL,
		fill_tax REAL NULL,
		fill_time INTEGER NULL,
		buy_order_id TEXT NOT NULL DEFAULT '',
		signal_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_signals_pair_direction_time ON signals (numerator, denominator, direction, emitted_at);
	CREATE INDEX IF NOT EXISTS idx_orders_pair_side_status ON orders (numerator, denominator, side, status);
	-- At most one buy in flight per pair.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_one_submitted_buy ON orders (numerator, denominator)
		WHERE side = 'BUY' AND status = 'submitted';
	-- At most one live sell per closed buy.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_one_sell_per_buy ON orders (buy_order_id)
		WHERE side = 'SELL' AND status != 'abandoned';
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- ConfigRepository Implementation ---

// GetConfig returns the stored value for key, or ports.ErrNotFound.
func (r *Repository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("config key %q: %w", key, ports.ErrNotFound)
		}
		return "", fmt.Errorf("failed to read config key %q: %w: %w", key, ports.ErrQueryFailed, err)
	}
	return value, nil
}

// SetConfig inserts or replaces the value for key.
func (r *Repository) SetConfig(ctx context.Context, key, value string) error {
	const query = `
	INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, key, value, r.now().UnixNano()); err != nil {
		return fmt.Errorf("failed to write config key %q: %w: %w", key, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Config stored", map[string]interface{}{"key": key})
	return nil
}

// --- SignalRepository Implementation ---

// AppendSignal saves a new signal. Signals are never updated.
func (r *Repository) AppendSignal(ctx context.Context, s *domain.Signal) error {
	const query = `
	INSERT INTO signals (id, numerator, denominator, timeframe, period, last, rsi_prev, rsi_curr,
	                     bb_lower, bb_upper, direction, std_dev, rsi_low, rsi_high,
	                     profile_index, ruler_version, emitted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Pair.Numerator, s.Pair.Denominator, s.Timeframe, s.Period, s.Last, s.RSIPrev, s.RSICurr,
		s.BBLower, s.BBUpper, string(s.Direction), s.Profile.StdDev, s.Profile.RSILow, s.Profile.RSIHigh,
		s.ProfileIndex, s.RulerVersion, s.EmittedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert signal for %s: %w", s.Pair, mapWriteError(err))
	}
	r.logger.Debug(ctx, "Signal stored", map[string]interface{}{"signalID": s.ID, "pair": s.Pair.String()})
	return nil
}

// QuerySignals returns signals matching filter ordered by emission time.
func (r *Repository) QuerySignals(ctx context.Context, f ports.SignalFilter, sort ports.SortOrder, limit int) ([]*domain.Signal, error) {
	var where []string
	var args []interface{}
	if f.Pair != nil {
		where = append(where, "numerator = ? AND denominator = ?")
		args = append(args, f.Pair.Numerator, f.Pair.Denominator)
	}
	if f.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, string(f.Direction))
	}
	if f.Timeframe != "" {
		where = append(where, "timeframe = ?")
		args = append(args, f.Timeframe)
	}
	if f.Period != 0 {
		where = append(where, "period = ?")
		args = append(args, f.Period)
	}
	if !f.Since.IsZero() {
		where = append(where, "emitted_at >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := `
	SELECT id, numerator, denominator, timeframe, period, last, rsi_prev, rsi_curr,
	       bb_lower, bb_upper, direction, std_dev, rsi_low, rsi_high,
	       profile_index, ruler_version, emitted_at
	FROM signals` + whereClause(where)
	if sort == ports.SortOldestFirst {
		query += " ORDER BY emitted_at ASC, rowid ASC"
	} else {
		query += " ORDER BY emitted_at DESC, rowid DESC"
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	signals := make([]*domain.Signal, 0)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return signals, nil
}

// --- OrderRepository Implementation ---

// AppendOrder saves a new order and sets its ID.
func (r *Repository) AppendOrder(ctx context.Context, o *domain.Order) error {
	const query = `
	INSERT INTO orders (client_order_id, numerator, denominator, side, requested_amount, exchange_order_id,
	                    status, fill_price, fill_amount, fill_fee, fill_tax, fill_time,
	                    buy_order_id, signal_id, reason, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if o.ClientOrderID == "" {
		return fmt.Errorf("order for %s has no client order id: %w", o.Pair, ports.ErrInvalidRequest)
	}
	now := r.now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	fp, fa, ff, ft, fts := fillColumns(o.Fill)

	result, err := r.db.ExecContext(ctx, query,
		o.ClientOrderID, o.Pair.Numerator, o.Pair.Denominator, string(o.Side), o.RequestedAmount, o.ExchangeOrderID,
		string(o.Status), fp, fa, ff, ft, fts,
		o.BuyOrderID, o.SignalID, string(o.Reason), o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert %s order for %s: %w", o.Side, o.Pair, mapWriteError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID for order %s: %w", o.ClientOrderID, err)
	}
	o.ID = id
	r.logger.Debug(ctx, "Order stored", map[string]interface{}{"orderID": id, "clientOrderID": o.ClientOrderID, "pair": o.Pair.String(), "side": o.Side})
	return nil
}

// UpdateOrder applies patch to the order keyed by clientOrderID. Terminal
// orders cannot change status and a recorded fill is never replaced.
func (r *Repository) UpdateOrder(ctx context.Context, clientOrderID string, patch ports.OrderPatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order update: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	current, err := scanOrder(tx.QueryRowContext(ctx, selectOrders+` WHERE client_order_id = ?`, clientOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s not found for update: %w", clientOrderID, ports.ErrNotFound)
		}
		return fmt.Errorf("failed to load order %s: %w: %w", clientOrderID, ports.ErrQueryFailed, err)
	}

	if patch.Status != nil && *patch.Status != current.Status {
		if current.Status.IsTerminal() {
			return fmt.Errorf("order %s is %s and cannot become %s: %w", clientOrderID, current.Status, *patch.Status, ports.ErrInvalidRequest)
		}
		current.Status = *patch.Status
	}
	if patch.Fill != nil {
		if current.Fill != nil {
			return fmt.Errorf("order %s already has a fill: %w", clientOrderID, ports.ErrInvalidRequest)
		}
		fill := *patch.Fill
		current.Fill = &fill
	}
	if current.Status == domain.StatusFilled && current.Fill == nil {
		return fmt.Errorf("order %s cannot be filled without a fill: %w", clientOrderID, ports.ErrInvalidRequest)
	}
	if patch.ExchangeOrderID != nil {
		current.ExchangeOrderID = *patch.ExchangeOrderID
	}
	if patch.Reason != nil {
		current.Reason = *patch.Reason
	}

	const query = `
	UPDATE orders
	SET exchange_order_id = ?, status = ?, fill_price = ?, fill_amount = ?, fill_fee = ?, fill_tax = ?,
	    fill_time = ?, reason = ?, updated_at = ?
	WHERE client_order_id = ?`

	fp, fa, ff, ft, fts := fillColumns(current.Fill)
	if _, err := tx.ExecContext(ctx, query,
		current.ExchangeOrderID, string(current.Status), fp, fa, ff, ft,
		fts, string(current.Reason), r.now().UnixNano(),
		clientOrderID); err != nil {
		return fmt.Errorf("failed to update order %s: %w", clientOrderID, mapWriteError(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order %s: %w: %w", clientOrderID, ports.ErrUpdateFailed, err)
	}

	r.logger.Debug(ctx, "Order updated", map[string]interface{}{"clientOrderID": clientOrderID, "status": current.Status})
	return nil
}

// QueryOrders returns orders matching filter, oldest first.
func (r *Repository) QueryOrders(ctx context.Context, f ports.OrderFilter) ([]*domain.Order, error) {
	var where []string
	var args []interface{}
	if f.Pair != nil {
		where = append(where, "numerator = ? AND denominator = ?")
		args = append(args, f.Pair.Numerator, f.Pair.Denominator)
	}
	if f.Side != "" {
		where = append(where, "side = ?")
		args = append(args, string(f.Side))
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.ClientOrderID != "" {
		where = append(where, "client_order_id = ?")
		args = append(args, f.ClientOrderID)
	}
	if f.BuyOrderID != "" {
		where = append(where, "buy_order_id = ?")
		args = append(args, f.BuyOrderID)
	}

	rows, err := r.db.QueryContext(ctx, selectOrders+whereClause(where)+" ORDER BY created_at ASC, id ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// --- Helpers ---

const selectOrders = `
	SELECT id, client_order_id, numerator, denominator, side, requested_amount, exchange_order_id,
	       status, fill_price, fill_amount, fill_fee, fill_tax, fill_time,
	       buy_order_id, signal_id, reason, created_at, updated_at
	FROM orders`

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// mapWriteError translates constraint violations into ports.ErrDuplicateEntry.
func mapWriteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %w", ports.ErrDuplicateEntry, err)
	}
	return fmt.Errorf("%w: %w", ports.ErrUpdateFailed, err)
}

func fillColumns(f *domain.Fill) (price, amount, fee, tax sql.NullFloat64, ts sql.NullInt64) {
	if f == nil {
		return
	}
	return sql.NullFloat64{Float64: f.Price, Valid: true},
		sql.NullFloat64{Float64: f.Amount, Valid: true},
		sql.NullFloat64{Float64: f.Fee, Valid: true},
		sql.NullFloat64{Float64: f.Tax, Valid: true},
		sql.NullInt64{Int64: f.Timestamp.UnixNano(), Valid: true}
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(s scanner) (*domain.Signal, error) {
	sig := &domain.Signal{}
	var direction string
	var emittedAt int64
	err := s.Scan(
		&sig.ID, &sig.Pair.Numerator, &sig.Pair.Denominator, &sig.Timeframe, &sig.Period, &sig.Last, &sig.RSIPrev, &sig.RSICurr,
		&sig.BBLower, &sig.BBUpper, &direction, &sig.Profile.StdDev, &sig.Profile.RSILow, &sig.Profile.RSIHigh,
		&sig.ProfileIndex, &sig.RulerVersion, &emittedAt)
	if err != nil {
		return nil, err
	}
	sig.Direction = domain.Direction(direction)
	sig.EmittedAt = time.Unix(0, emittedAt).UTC()
	return sig, nil
}

// scanOrder scans a row into a domain.Order; the exchange order id of a fill
// mirrors the order's.
func scanOrder(s scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var side, status, reason string
	var price, amount, fee, tax sql.NullFloat64
	var fillTime sql.NullInt64
	var createdAt, updatedAt int64
	err := s.Scan(
		&o.ID, &o.ClientOrderID, &o.Pair.Numerator, &o.Pair.Denominator, &side, &o.RequestedAmount, &o.ExchangeOrderID,
		&status, &price, &amount, &fee, &tax, &fillTime,
		&o.BuyOrderID, &o.SignalID, &reason, &createdAt, &updatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.Reason = domain.AbandonReason(reason)
	o.CreatedAt = time.Unix(0, createdAt).UTC()
	o.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if price.Valid {
		o.Fill = &domain.Fill{
			Price:           price.Float64,
			Amount:          amount.Float64,
			Fee:             fee.Float64,
			Tax:             tax.Float64,
			Timestamp:       time.Unix(0, fillTime.Int64).UTC(),
			ExchangeOrderID: o.ExchangeOrderID,
		}
	}
	return o, nil
}

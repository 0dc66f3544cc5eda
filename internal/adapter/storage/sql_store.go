package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/port"
)

const (
	itemColumns  = `id, name, category, total_quantity, available_quantity, created_at, updated_at`
	eventColumns = `id, owner_uid, service, event_date, start_time, end_time, city,
		client_name, client_phone, client_email, latitude, longitude,
		assigned_inventory, created_at, updated_at`
	movementColumns = `id, item_id, quantity_moved, movement_type, event_id, created_at`
)

// SQLStore implements port.Store on MySQL, PostgreSQL or SQLite.
type SQLStore struct {
	db       *sqlx.DB
	dialect  dialect
	attempts uint
	now      func() time.Time
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, attempts uint) (*SQLStore, error) {
	if attempts == 0 {
		attempts = 1
	}
	store := &SQLStore{
		db:       sqlx.NewDb(db, d.bindName),
		dialect:  d,
		attempts: attempts,
		now:      time.Now,
	}
	if err := applyMigrations(ctx, store.db, d); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", d.name, err)
	}
	return store, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// WithinTx retries fn with exponential backoff while the database reports
// deadlocks, lock timeouts or busy errors.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, scope port.TxScope) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.runTx(ctx, fn)
		if err != nil && !s.dialect.retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.attempts))

	if err != nil && s.dialect.retryable(err) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}
	return err
}

func (s *SQLStore) runTx(ctx context.Context, fn func(ctx context.Context, scope port.TxScope) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqlScope{store: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqlScope struct {
	store *SQLStore
	tx    *sqlx.Tx
}

func (sc *sqlScope) Stock() port.StockLedger  { return sqlLedger{sc} }
func (sc *sqlScope) Events() port.EventRecords { return sqlEventRecords{sc} }

type sqlLedger struct{ sc *sqlScope }

func (l sqlLedger) Get(ctx context.Context, itemID string) (domain.StockItem, error) {
	return l.sc.store.getItem(ctx, l.sc.tx, itemID, true)
}

func (l sqlLedger) Adjust(ctx context.Context, itemID string, delta int) error {
	return l.sc.store.adjust(ctx, l.sc.tx, itemID, delta)
}

type sqlEventRecords struct{ sc *sqlScope }

func (r sqlEventRecords) Get(ctx context.Context, eventID string) (domain.Event, error) {
	return r.sc.store.getEvent(ctx, r.sc.tx, eventID, true)
}

func (r sqlEventRecords) SetAssignments(ctx context.Context, eventID string, assignments []domain.EventAssignment) error {
	return r.sc.store.setAssignments(ctx, r.sc.tx, eventID, assignments)
}

func (r sqlEventRecords) Delete(ctx context.Context, eventID string) error {
	return r.sc.store.deleteEvent(ctx, r.sc.tx, eventID)
}

func (s *SQLStore) getItem(ctx context.Context, q sqlx.QueryerContext, itemID string, lock bool) (domain.StockItem, error) {
	query := `SELECT ` + itemColumns + ` FROM stock_items WHERE id = ?`
	if lock {
		query += s.dialect.lockClause
	}
	var row itemRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(query), itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockItem{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("query item %s: %w", itemID, err)
	}
	return row.toDomain(), nil
}

func (s *SQLStore) adjust(ctx context.Context, tx *sqlx.Tx, itemID string, delta int) error {
	result, err := tx.ExecContext(ctx, s.db.Rebind(`
		UPDATE stock_items
		SET available_quantity = available_quantity + ?, updated_at = ?
		WHERE id = ? AND available_quantity + ? >= 0`),
		delta, toMillis(s.now()), itemID, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust item %s: %w", itemID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust item %s: %w", itemID, err)
	}
	if rows == 0 {
		if _, err := s.getItem(ctx, tx, itemID, false); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, itemID)
	}
	return nil
}

func (s *SQLStore) getEvent(ctx context.Context, q sqlx.QueryerContext, eventID string, lock bool) (domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	if lock {
		query += s.dialect.lockClause
	}
	var row eventRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(query), eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("query event %s: %w", eventID, err)
	}
	return row.toDomain()
}

func (s *SQLStore) setAssignments(ctx context.Context, tx *sqlx.Tx, eventID string, assignments []domain.EventAssignment) error {
	encoded, err := encodeAssignments(assignments)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx,
		s.db.Rebind(`UPDATE events SET assigned_inventory = ?, updated_at = ? WHERE id = ?`),
		encoded, toMillis(s.now()), eventID,
	)
	if err != nil {
		return fmt.Errorf("update assignments %s: %w", eventID, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	return nil
}

// deleteEvent only matches an empty assignment list, so stock reserved by a
// concurrent transaction can never be dropped with its event.
func (s *SQLStore) deleteEvent(ctx context.Context, tx *sqlx.Tx, eventID string) error {
	empty, err := encodeAssignments(nil)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM events WHERE id = ? AND assigned_inventory = ?`),
		eventID, empty,
	)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	if rows == 0 {
		if _, err := s.getEvent(ctx, tx, eventID, false); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrEventHasInventory, eventID)
	}
	return nil
}

func (s *SQLStore) ListItems(ctx context.Context) ([]domain.StockItem, error) {
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+itemColumns+` FROM stock_items ORDER BY category, name, id`); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items := make([]domain.StockItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toDomain())
	}
	return items, nil
}

func (s *SQLStore) GetItem(ctx context.Context, itemID string) (domain.StockItem, error) {
	return s.getItem(ctx, s.db, itemID, false)
}

func (s *SQLStore) CreateItem(ctx context.Context, item domain.StockItem) error {
	if item.TotalQuantity < 0 {
		return fmt.Errorf("%w: negative total for %s", domain.ErrInvalidQuantity, item.ID)
	}
	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO stock_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		item.ID, item.Name, item.Category, item.TotalQuantity, item.TotalQuantity, now, now,
	)
	if err != nil {
		if s.dialect.duplicate(err) {
			return fmt.Errorf("%w: %s", domain.ErrItemExists, item.ID)
		}
		return fmt.Errorf("insert item %s: %w", item.ID, err)
	}
	return nil
}

func (s *SQLStore) CreateEvent(ctx context.Context, event domain.Event) error {
	encoded, err := encodeAssignments(event.AssignedInventory)
	if err != nil {
		return err
	}
	lat, lng := nullLocation(event.Location)
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		event.ID, event.OwnerUID, event.Service, event.Date, event.StartTime, event.EndTime, event.City,
		event.Client.Name, event.Client.Phone, event.Client.Email, lat, lng,
		encoded, toMillis(event.CreatedAt), toMillis(event.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", event.ID, err)
	}
	return nil
}

func (s *SQLStore) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	return s.getEvent(ctx, s.db, eventID, false)
}

func (s *SQLStore) ListEvents(ctx context.Context) ([]domain.Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+eventColumns+` FROM events ORDER BY event_date, start_time, id`); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *SQLStore) UpdateEventDetails(ctx context.Context, eventID string, details domain.EventDetails) (domain.Event, error) {
	lat, lng := nullLocation(details.Location)
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE events
		SET service = ?, event_date = ?, start_time = ?, end_time = ?, city = ?,
			client_name = ?, client_phone = ?, client_email = ?, latitude = ?, longitude = ?,
			updated_at = ?
		WHERE id = ?`),
		details.Service, details.Date, details.StartTime, details.EndTime, details.City,
		details.Client.Name, details.Client.Phone, details.Client.Email, lat, lng,
		toMillis(s.now()), eventID,
	)
	if err != nil {
		return domain.Event{}, fmt.Errorf("update event %s: %w", eventID, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.Event{}, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	return s.GetEvent(ctx, eventID)
}

func (s *SQLStore) Append(ctx context.Context, record domain.MovementRecord) error {
	if !record.MovementType.Valid() {
		return fmt.Errorf("invalid movement type %q", record.MovementType)
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO inventory_movements (`+movementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`),
		record.ID, record.ItemID, record.QuantityMoved, string(record.MovementType), record.EventID, toMillis(record.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert movement %s: %w", record.ID, err)
	}
	return nil
}

func (s *SQLStore) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.MovementRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.ItemID != "" {
		where = append(where, "item_id = ?")
		args = append(args, filter.ItemID)
	}
	if filter.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, filter.EventID)
	}

	query := `SELECT ` + movementColumns + ` FROM inventory_movements`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT %d`, movementLimit(filter.Limit))

	var rows []movementRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	out := make([]domain.MovementRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SQLStore) MovementTotals(ctx context.Context) (map[string]domain.MovementTotals, error) {
	var rows []struct {
		ItemID       string `db:"item_id"`
		MovementType string `db:"movement_type"`
		Total        int64  `db:"total"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT item_id, movement_type, COALESCE(SUM(quantity_moved), 0) AS total
		FROM inventory_movements
		GROUP BY item_id, movement_type`)
	if err != nil {
		return nil, fmt.Errorf("sum movements: %w", err)
	}

	totals := make(map[string]domain.MovementTotals)
	for _, r := range rows {
		t := totals[r.ItemID]
		switch domain.MovementType(r.MovementType) {
		case domain.MovementTypeAssign:
			t.Assigned += int(r.Total)
		case domain.MovementTypeRelease:
			t.Released += int(r.Total)
		}
		totals[r.ItemID] = t
	}
	return totals, nil
}

func nullLocation(p *domain.GeoPoint) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lat, Valid: true}, sql.NullFloat64{Float64: p.Lng, Valid: true}
}

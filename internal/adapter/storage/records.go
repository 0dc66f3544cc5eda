package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rl1809/event-inventory/internal/core/domain"
)

const (
	defaultMovementLimit = 100
	maxMovementLimit     = 1000
)

type itemRow struct {
	ID                string `db:"id"`
	Name              string `db:"name"`
	Category          string `db:"category"`
	TotalQuantity     int    `db:"total_quantity"`
	AvailableQuantity int    `db:"available_quantity"`
	CreatedAt         int64  `db:"created_at"`
	UpdatedAt         int64  `db:"updated_at"`
}

func (r itemRow) toDomain() domain.StockItem {
	return domain.StockItem{
		ID:                r.ID,
		Name:              r.Name,
		Category:          r.Category,
		TotalQuantity:     r.TotalQuantity,
		AvailableQuantity: r.AvailableQuantity,
		CreatedAt:         fromMillis(r.CreatedAt),
		UpdatedAt:         fromMillis(r.UpdatedAt),
	}
}

type eventRow struct {
	ID                string          `db:"id"`
	OwnerUID          string          `db:"owner_uid"`
	Service           string          `db:"service"`
	EventDate         string          `db:"event_date"`
	StartTime         string          `db:"start_time"`
	EndTime           string          `db:"end_time"`
	City              string          `db:"city"`
	ClientName        string          `db:"client_name"`
	ClientPhone       string          `db:"client_phone"`
	ClientEmail       string          `db:"client_email"`
	Latitude          sql.NullFloat64 `db:"latitude"`
	Longitude         sql.NullFloat64 `db:"longitude"`
	AssignedInventory string          `db:"assigned_inventory"`
	CreatedAt         int64           `db:"created_at"`
	UpdatedAt         int64           `db:"updated_at"`
}

func (r eventRow) toDomain() (domain.Event, error) {
	assignments, err := decodeAssignments(r.AssignedInventory)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %s: %w", r.ID, err)
	}
	ev := domain.Event{
		ID:       r.ID,
		OwnerUID: r.OwnerUID,
		EventDetails: domain.EventDetails{
			Service:   r.Service,
			Date:      r.EventDate,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			City:      r.City,
			Client: domain.Client{
				Name:  r.ClientName,
				Phone: r.ClientPhone,
				Email: r.ClientEmail,
			},
		},
		AssignedInventory: assignments,
		CreatedAt:         fromMillis(r.CreatedAt),
		UpdatedAt:         fromMillis(r.UpdatedAt),
	}
	if r.Latitude.Valid && r.Longitude.Valid {
		ev.Location = &domain.GeoPoint{Lat: r.Latitude.Float64, Lng: r.Longitude.Float64}
	}
	return ev, nil
}

type movementRow struct {
	ID            string `db:"id"`
	ItemID        string `db:"item_id"`
	QuantityMoved int    `db:"quantity_moved"`
	MovementType  string `db:"movement_type"`
	EventID       string `db:"event_id"`
	CreatedAt     int64  `db:"created_at"`
}

func (r movementRow) toDomain() domain.MovementRecord {
	return domain.MovementRecord{
		ID:            r.ID,
		ItemID:        r.ItemID,
		QuantityMoved: r.QuantityMoved,
		MovementType:  domain.MovementType(r.MovementType),
		EventID:       r.EventID,
		Timestamp:     fromMillis(r.CreatedAt),
	}
}

type assignmentRecord struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

func encodeAssignments(assignments []domain.EventAssignment) (string, error) {
	if err := domain.ValidateAssignments(assignments); err != nil {
		return "", err
	}
	records := make([]assignmentRecord, 0, len(assignments))
	for _, a := range assignments {
		records = append(records, assignmentRecord{ItemID: a.ItemID, Quantity: a.Quantity})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode assignments: %w", err)
	}
	return string(data), nil
}

func decodeAssignments(raw string) ([]domain.EventAssignment, error) {
	if raw == "" {
		return nil, nil
	}
	var records []assignmentRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode assignments: %w", err)
	}
	out := make([]domain.EventAssignment, 0, len(records))
	for _, r := range records {
		out = append(out, domain.EventAssignment{ItemID: r.ItemID, Quantity: r.Quantity})
	}
	if err := domain.ValidateAssignments(out); err != nil {
		return nil, fmt.Errorf("stored assignments: %w", err)
	}
	return out, nil
}

func movementLimit(limit int) int {
	if limit <= 0 {
		return defaultMovementLimit
	}
	if limit > maxMovementLimit {
		return maxMovementLimit
	}
	return limit
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

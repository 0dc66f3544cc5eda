package handler

import (
	"time"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/core/service"
)

type ClientDTO struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type LocationDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type AssignmentDTO struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type EventRequest struct {
	Service   string       `json:"service"`
	Date      string       `json:"date"`
	StartTime string       `json:"start_time"`
	EndTime   string       `json:"end_time"`
	City      string       `json:"city"`
	Client    ClientDTO    `json:"client"`
	Location  *LocationDTO `json:"location,omitempty"`
}

func (r EventRequest) toDetails() domain.EventDetails {
	d := domain.EventDetails{
		Service:   r.Service,
		Date:      r.Date,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		City:      r.City,
		Client: domain.Client{
			Name:  r.Client.Name,
			Phone: r.Client.Phone,
			Email: r.Client.Email,
		},
	}
	if r.Location != nil {
		d.Location = &domain.GeoPoint{Lat: r.Location.Lat, Lng: r.Location.Lng}
	}
	return d
}

type EventResponse struct {
	ID                string          `json:"id"`
	OwnerUID          string          `json:"owner_uid"`
	Service           string          `json:"service"`
	Date              string          `json:"date"`
	StartTime         string          `json:"start_time"`
	EndTime           string          `json:"end_time"`
	City              string          `json:"city"`
	Client            ClientDTO       `json:"client"`
	Location          *LocationDTO    `json:"location,omitempty"`
	AssignedInventory []AssignmentDTO `json:"assigned_inventory"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func newEventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:                e.ID,
		OwnerUID:          e.OwnerUID,
		Service:           e.Service,
		Date:              e.Date,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		City:              e.City,
		Client:            ClientDTO{Name: e.Client.Name, Phone: e.Client.Phone, Email: e.Client.Email},
		AssignedInventory: newAssignmentDTOs(e.AssignedInventory),
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
	if e.Location != nil {
		resp.Location = &LocationDTO{Lat: e.Location.Lat, Lng: e.Location.Lng}
	}
	return resp
}

func newAssignmentDTOs(assignments []domain.EventAssignment) []AssignmentDTO {
	out := make([]AssignmentDTO, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, AssignmentDTO{ItemID: a.ItemID, Quantity: a.Quantity})
	}
	return out
}

type ItemResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	ReservedQuantity  int       `json:"reserved_quantity"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newItemResponses(items []domain.StockItem) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, ItemResponse{
			ID:                it.ID,
			Name:              it.Name,
			Category:          it.Category,
			TotalQuantity:     it.TotalQuantity,
			AvailableQuantity: it.AvailableQuantity,
			ReservedQuantity:  it.Reserved(),
			UpdatedAt:         it.UpdatedAt,
		})
	}
	return out
}

type ReserveRequest struct {
	Items map[string]int `json:"items"`
}

type ReserveResponse struct {
	Assignments []AssignmentDTO `json:"assignments"`
	Items       []ItemResponse  `json:"items"`
}

type ReleaseResponse struct {
	Released         []AssignmentDTO `json:"released"`
	NothingToRelease bool            `json:"nothing_to_release"`
}

type MovementResponse struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"item_id"`
	QuantityMoved int       `json:"quantity_moved"`
	MovementType  string    `json:"movement_type"`
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
}

type DriftResponse struct {
	ItemID           string `json:"item_id"`
	Name             string `json:"name"`
	LedgerReserved   int    `json:"ledger_reserved"`
	JournalReserved  int    `json:"journal_reserved"`
	AssignedReserved int    `json:"assigned_reserved"`
}

type ReconciliationResponse struct {
	CheckedAt    time.Time       `json:"checked_at"`
	ItemsChecked int             `json:"items_checked"`
	Consistent   bool            `json:"consistent"`
	Drifts       []DriftResponse `json:"drifts"`
}

func newReconciliationResponse(r service.Report) ReconciliationResponse {
	resp := ReconciliationResponse{
		CheckedAt:    r.CheckedAt,
		ItemsChecked: r.ItemsChecked,
		Consistent:   r.Consistent(),
		Drifts:       make([]DriftResponse, 0, len(r.Drifts)),
	}
	for _, d := range r.Drifts {
		resp.Drifts = append(resp.Drifts, DriftResponse(d))
	}
	return resp
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type StaffResponse struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

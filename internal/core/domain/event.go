package domain

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Services is the catalogue of bookable services.
var Services = []string{
	"Alquiler de sonido",
	"Alquiler de luces",
	"Alquiler de efectos especiales",
	"Alquiler de mobiliario",
	"Alquiler de artistas",
	"Alquiler de grupos musicales",
	"Alquiler de Hora Loca",
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9]{7,}$`)
)

type Client struct {
	Name  string
	Phone string
	Email string
}

type GeoPoint struct {
	Lat float64
	Lng float64
}

type EventAssignment struct {
	ItemID   string
	Quantity int
}

// EventDetails are the user-editable fields of an event.
type EventDetails struct {
	Service   string
	Date      string
	StartTime string
	EndTime   string
	City      string
	Client    Client
	Location  *GeoPoint
}

type Event struct {
	ID       string
	OwnerUID string
	EventDetails
	AssignedInventory []EventAssignment
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Normalize trims surrounding whitespace from every text field.
func (d EventDetails) Normalize() EventDetails {
	d.Service = strings.TrimSpace(d.Service)
	d.Date = strings.TrimSpace(d.Date)
	d.StartTime = strings.TrimSpace(d.StartTime)
	d.EndTime = strings.TrimSpace(d.EndTime)
	d.City = strings.TrimSpace(d.City)
	d.Client.Name = strings.TrimSpace(d.Client.Name)
	d.Client.Phone = strings.TrimSpace(d.Client.Phone)
	d.Client.Email = strings.TrimSpace(d.Client.Email)
	return d
}

// Validate checks the form rules. today is the current civil date in the
// dashboard's time zone; events may not be scheduled before it.
func (d EventDetails) Validate(today time.Time) error {
	fields := map[string]string{}

	if d.Service == "" {
		fields["service"] = "service is required"
	} else if !isKnownService(d.Service) {
		fields["service"] = "unknown service"
	}

	date, dateErr := time.Parse(DateLayout, d.Date)
	switch {
	case d.Date == "":
		fields["date"] = "date is required"
	case dateErr != nil:
		fields["date"] = "date must be YYYY-MM-DD"
	default:
		y, m, day := today.Date()
		if date.Before(time.Date(y, m, day, 0, 0, 0, 0, time.UTC)) {
			fields["date"] = "date cannot be in the past"
		}
	}

	if d.StartTime == "" {
		fields["start_time"] = "start time is required"
	} else if _, err := time.Parse(TimeLayout, d.StartTime); err != nil {
		fields["start_time"] = "start time must be HH:MM"
	}
	// an end at or before the start rolls to the next day, see Window
	if d.EndTime == "" {
		fields["end_time"] = "end time is required"
	} else if _, err := time.Parse(TimeLayout, d.EndTime); err != nil {
		fields["end_time"] = "end time must be HH:MM"
	}

	if d.City == "" {
		fields["city"] = "city is required"
	}
	if d.Client.Name == "" {
		fields["client_name"] = "client name is required"
	}
	if d.Client.Phone == "" {
		fields["client_phone"] = "client phone is required"
	} else if !phonePattern.MatchString(d.Client.Phone) {
		fields["client_phone"] = "client phone must have at least 7 digits"
	}
	if d.Client.Email == "" {
		fields["client_email"] = "client email is required"
	} else if !emailPattern.MatchString(d.Client.Email) {
		fields["client_email"] = "client email is invalid"
	}

	if d.Location != nil {
		if !validCoordinate(d.Location.Lat, 90) {
			fields["latitude"] = "latitude must be between -90 and 90"
		}
		if !validCoordinate(d.Location.Lng, 180) {
			fields["longitude"] = "longitude must be between -180 and 180"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Window resolves the event's start and end instants in loc. An end time at
// or before the start time means the event runs past midnight; equal times
// book a full 24 hours.
func (d EventDetails) Window(loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, d.Date+" "+d.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse start: %w", err)
	}
	end, err := time.ParseInLocation(DateLayout+" "+TimeLayout, d.Date+" "+d.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end: %w", err)
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// ReservedQuantity returns how much of itemID the event currently holds.
func (e Event) ReservedQuantity(itemID string) int {
	for _, a := range e.AssignedInventory {
		if a.ItemID == itemID {
			return a.Quantity
		}
	}
	return 0
}

// ValidateAssignments enforces the embedded list schema: non-empty item ids,
// positive quantities, one entry per item.
func ValidateAssignments(assignments []EventAssignment) error {
	seen := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		if strings.TrimSpace(a.ItemID) == "" {
			return errors.New("assignment with empty item id")
		}
		if a.Quantity <= 0 {
			return fmt.Errorf("assignment for %s has non-positive quantity %d", a.ItemID, a.Quantity)
		}
		if _, dup := seen[a.ItemID]; dup {
			return fmt.Errorf("duplicate assignment for %s", a.ItemID)
		}
		seen[a.ItemID] = struct{}{}
	}
	return nil
}

// MergeAssignments adds quantities onto existing entries, keeping the
// original order and appending new items sorted by id.
func MergeAssignments(current []EventAssignment, add map[string]int) []EventAssignment {
	merged := make([]EventAssignment, 0, len(current)+len(add))
	seen := make(map[string]struct{}, len(current))
	for _, a := range current {
		a.Quantity += add[a.ItemID]
		merged = append(merged, a)
		seen[a.ItemID] = struct{}{}
	}

	fresh := make([]string, 0, len(add))
	for id := range add {
		if _, ok := seen[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	sort.Strings(fresh)
	for _, id := range fresh {
		merged = append(merged, EventAssignment{ItemID: id, Quantity: add[id]})
	}
	return merged
}

// WithoutAssignment returns the list minus itemID and the removed entry.
func WithoutAssignment(current []EventAssignment, itemID string) ([]EventAssignment, EventAssignment, bool) {
	remaining := make([]EventAssignment, 0, len(current))
	var removed EventAssignment
	found := false
	for _, a := range current {
		if a.ItemID == itemID && !found {
			removed = a
			found = true
			continue
		}
		remaining = append(remaining, a)
	}
	return remaining, removed, found
}

func isKnownService(service string) bool {
	for _, s := range Services {
		if s == service {
			return true
		}
	}
	return false
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

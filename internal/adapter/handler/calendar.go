package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/rl1809/event-inventory/internal/core/domain"
)

const calendarProductID = "-//event-inventory//events//ES"

// Calendar serves every event as an iCalendar feed that staff can subscribe
// to from their phone calendar.
func (h *HTTPHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cal := buildCalendar(events, h.events.Location(), h.now(), h.logger)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, cal.Serialize())
}

func buildCalendar(events []domain.Event, loc *time.Location, now time.Time, logger *zap.Logger) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName("Eventos")

	for _, e := range events {
		start, end, err := e.Window(loc)
		if err != nil {
			logger.Warn("skipping event with unreadable schedule", zap.String("event_id", e.ID), zap.Error(err))
			continue
		}

		vevent := cal.AddEvent(e.ID + "@event-inventory")
		vevent.SetCreatedTime(e.CreatedAt)
		vevent.SetModifiedAt(e.UpdatedAt)
		vevent.SetDtStampTime(now)
		vevent.SetStartAt(start)
		vevent.SetEndAt(end)
		vevent.SetSummary(fmt.Sprintf("%s - %s", e.Service, e.Client.Name))
		vevent.SetLocation(e.City)
		vevent.SetDescription(eventDescription(e))
	}
	return cal
}

func eventDescription(e domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cliente: %s\nTeléfono: %s\nCorreo: %s", e.Client.Name, e.Client.Phone, e.Client.Email)
	if len(e.AssignedInventory) > 0 {
		b.WriteString("\nInventario:")
		for _, a := range e.AssignedInventory {
			fmt.Fprintf(&b, "\n- %s x%d", a.ItemID, a.Quantity)
		}
	}
	return b.String()
}

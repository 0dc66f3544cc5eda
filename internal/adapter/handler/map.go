package handler

import (
	"net/http"
)

// Default view centred on Tuluá, Valle del Cauca.
var defaultMapCenter = LocationDTO{Lat: 3.6927785, Lng: -76.3149873}

const defaultMapZoom = 12

type MapPoint struct {
	EventID    string  `json:"event_id"`
	Service    string  `json:"service"`
	ClientName string  `json:"client_name"`
	City       string  `json:"city"`
	Date       string  `json:"date"`
	StartTime  string  `json:"start_time"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

type MapResponse struct {
	Center LocationDTO `json:"center"`
	Zoom   int         `json:"zoom"`
	Points []MapPoint  `json:"points"`
}

// MapPoints lists the events that carry coordinates.
func (h *HTTPHandler) MapPoints(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := MapResponse{Center: defaultMapCenter, Zoom: defaultMapZoom, Points: []MapPoint{}}
	for _, e := range events {
		if e.Location == nil {
			continue
		}
		resp.Points = append(resp.Points, MapPoint{
			EventID:    e.ID,
			Service:    e.Service,
			ClientName: e.Client.Name,
			City:       e.City,
			Date:       e.Date,
			StartTime:  e.StartTime,
			Lat:        e.Location.Lat,
			Lng:        e.Location.Lng,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

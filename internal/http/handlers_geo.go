package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/example/carpool/internal/models"
)

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("query"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}
	if s.Geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoding not configured")
		return
	}
	res, err := s.Geocoder.Geocode(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusNotFound, "location not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lat":  res.Coordinate.Lat,
		"lng":  res.Coordinate.Lng,
		"name": res.Name,
	})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, ok1 := coordFromQuery(q.Get("origin_lat"), q.Get("origin_lng"))
	to, ok2 := coordFromQuery(q.Get("dest_lat"), q.Get("dest_lng"))
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "missing coordinates")
		return
	}
	route := s.Routing.Resolve(r.Context(), from, to)
	writeJSON(w, http.StatusOK, route)
}

func coordFromQuery(latS, lngS string) (models.Coordinate, bool) {
	if latS == "" || lngS == "" {
		return models.Coordinate{}, false
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lng, err2 := strconv.ParseFloat(lngS, 64)
	if err1 != nil || err2 != nil {
		return models.Coordinate{}, false
	}
	c := models.Coordinate{Lat: lat, Lng: lng}
	return c, c.Valid()
}

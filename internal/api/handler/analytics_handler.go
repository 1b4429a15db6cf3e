package handler

import (
	"net/http"
	"time"

	"github.com/matchpoint/notify-engine/internal/tracking"
)

// AnalyticsHandler serves the aggregated engagement view.
type AnalyticsHandler struct {
	collector *tracking.Collector
}

func NewAnalyticsHandler(collector *tracking.Collector) *AnalyticsHandler {
	return &AnalyticsHandler{collector: collector}
}

// Get handles GET /api/v1/analytics?from=&to=
//
// @Summary  Engagement stats over a window (default: trailing 7 days)
// @Tags     analytics
// @Produce  json
// @Param    from  query     string  false  "Window start (RFC3339)"
// @Param    to    query     string  false  "Window end (RFC3339)"
// @Success  200   {object}  domain.EngagementStats
// @Router   /api/v1/analytics [get]
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)

	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		from = t.UTC()
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		to = t.UTC()
	}
	if from.After(to) {
		respondError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	stats, err := h.collector.Analytics(r.Context(), from, to)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

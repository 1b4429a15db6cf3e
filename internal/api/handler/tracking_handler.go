package handler

import (
	"net"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/matchpoint/notify-engine/internal/tracking"
)

// TrackingHandler serves the open pixel and the click redirect. Both
// endpoints succeed for the end user no matter what happens to the
// recording side.
type TrackingHandler struct {
	collector *tracking.Collector
}

func NewTrackingHandler(collector *tracking.Collector) *TrackingHandler {
	return &TrackingHandler{collector: collector}
}

// Pixel handles GET /tracking/pixel/{id}
//
// @Summary  Open-tracking pixel
// @Tags     tracking
// @Produce  image/png
// @Param    id  path  string  true  "Tracking ID"
// @Success  200
// @Router   /tracking/pixel/{id} [get]
func (h *TrackingHandler) Pixel(w http.ResponseWriter, r *http.Request) {
	h.collector.RecordOpen(r.Context(), chi.URLParam(r, "id"), clientIP(r), r.UserAgent())

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	_, _ = w.Write(tracking.Pixel)
}

// Click handles GET /tracking/click/{id}?url=&type=
//
// @Summary  Click-tracking redirect
// @Tags     tracking
// @Param    id    path   string  true   "Tracking ID"
// @Param    url   query  string  true   "Destination URL"
// @Param    type  query  string  false  "Link type label"
// @Success  302
// @Failure  400  {object}  map[string]string
// @Router   /tracking/click/{id} [get]
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	dest := r.URL.Query().Get("url")
	if !safeRedirect(dest) {
		respondError(w, http.StatusBadRequest, "missing or invalid url parameter")
		return
	}

	h.collector.RecordClick(r.Context(), chi.URLParam(r, "id"), clientIP(r),
		r.UserAgent(), dest, r.URL.Query().Get("type"))

	http.Redirect(w, r, dest, http.StatusFound)
}

// safeRedirect accepts absolute http(s) URLs only, closing the open
// redirect hole a bare passthrough would leave.
func safeRedirect(dest string) bool {
	if dest == "" {
		return false
	}
	u, err := url.Parse(dest)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// clientIP returns the request's remote address without the port. The
// RealIP middleware has already folded X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

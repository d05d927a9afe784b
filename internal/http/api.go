// Package http serves the subscriber's observability surface: receive loop
// counters and a live frame preview.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/edgevid/shmcast"
	"github.com/edgevid/shmcast/process"
)

// mjpegInterval paces the multipart preview stream; full frame rate would
// just burn encoder output the browser throws away.
const mjpegInterval = 100 * time.Millisecond

// StatsFunc supplies the current receive loop counters.
type StatsFunc func() shmcast.Snapshot

type API struct {
	logger  *slog.Logger
	stats   StatsFunc
	preview *process.Preview
}

// NewAPI builds the subscriber API. preview may be nil, in which case only
// the stats route is registered.
func NewAPI(stats StatsFunc, preview *process.Preview) *API {
	return &API{
		logger:  slog.Default(),
		stats:   stats,
		preview: preview,
	}
}

func (a *API) RegisterRoutes(mux *httprouter.Router) {
	mux.HandlerFunc("GET", "/api/stats", a.GetStats)
	if a.preview != nil {
		mux.Handler("GET", "/preview.jpg", a.preview)
		mux.HandlerFunc("GET", "/preview.mjpeg", a.preview.ServeMJPEG(mjpegInterval))
	}
}

func (a *API) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.stats()); err != nil {
		a.logger.Error("failed to encode stats", "error", err)
	}
}

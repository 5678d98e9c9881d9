package api

import (
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// metrics returns GET /metrics — a small set of gauges in Prometheus text
// exposition format, for scraping alongside the rest of the fleet.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	noteCount, err := h.store.CountNotes(r.Context())
	if err != nil {
		slog.Error("api: count notes for metrics", "err", err)
	}

	families := []*dto.MetricFamily{
		gauge("inkstream_ws_connections", "Live WebSocket connections.", float64(h.stats.Count())),
		gauge("inkstream_ws_groups", "Broadcast groups with at least one connection.", float64(h.stats.GroupCount())),
		gauge("inkstream_relay_sessions_active", "AI streaming sessions currently running.", float64(h.relay.Active())),
		gauge("inkstream_notes_total", "Notes currently stored.", float64(noteCount)),
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			slog.Error("api: encode metric family", "family", mf.GetName(), "err", err)
			return
		}
	}
}

func gauge(name, help string, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: proto.Float64(value)}},
		},
	}
}

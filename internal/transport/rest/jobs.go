package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-gateway/internal/queue"
)

const (
	WorkerStatusRunning = "running"
	WorkerStatusUnknown = "unknown"
)

// StatsReader is satisfied by *queue.Client.
type StatsReader interface {
	Stats(ctx context.Context, queues ...string) (map[string]*queue.Stats, error)
}

type JobStatus struct {
	Pending      int64  `json:"pending"`
	Processing   int64  `json:"processing"`
	Completed    int64  `json:"completed"`
	Failed       int64  `json:"failed"`
	WorkerStatus string `json:"worker_status"`
}

type JobsHandler struct {
	stats  StatsReader
	logger *slog.Logger
}

func NewJobsHandler(stats StatsReader, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{stats: stats, logger: logger}
}

// Status handles GET /api/v1/test/jobs/status. Delayed jobs count as pending.
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	all, err := h.stats.Stats(r.Context(), queue.Names...)
	if err != nil {
		h.logger.Warn("queue stats unavailable", "error", err)
		writeJSON(w, http.StatusOK, JobStatus{WorkerStatus: WorkerStatusUnknown})
		return
	}

	status := JobStatus{WorkerStatus: WorkerStatusRunning}
	for _, s := range all {
		status.Pending += s.Waiting + s.Delayed
		status.Processing += s.Active
		status.Completed += s.Completed
		status.Failed += s.Dead
	}
	writeJSON(w, http.StatusOK, status)
}

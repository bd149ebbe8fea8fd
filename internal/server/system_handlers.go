package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves process and host level status.
type SystemHandlers struct {
	log       zerolog.Logger
	db        *sql.DB
	dbPath    string
	startedAt time.Time
}

func NewSystemHandlers(db *sql.DB, dbPath string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system-handlers").Logger(),
		db:        db,
		dbPath:    dbPath,
		startedAt: time.Now(),
	}
}

func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
	})
}

type systemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	DatabaseMB    float64 `json:"database_mb"`
	DatabaseOK    bool    `json:"database_ok"`
}

// handleStatus reports CPU, memory and disk load plus database reachability.
// The CPU sample uses a 100 ms window to keep the endpoint responsive.
func (h *SystemHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := systemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		resp.CPUPercent = cpuPercent[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("failed to sample CPU usage")
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		resp.MemPercent = memStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("failed to read memory statistics")
	}

	if diskStat, err := disk.Usage("/"); err == nil {
		resp.DiskPercent = diskStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("failed to read disk usage")
	}

	if info, err := os.Stat(h.dbPath); err == nil {
		resp.DatabaseMB = float64(info.Size()) / 1024 / 1024
	}
	if err := h.db.PingContext(r.Context()); err != nil {
		resp.DatabaseOK = false
		resp.Status = "degraded"
		h.log.Warn().Err(err).Msg("database ping failed")
	} else {
		resp.DatabaseOK = true
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("failed to encode system status")
	}
}

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/modules/audit"
	"github.com/teamscryps/backend/internal/modules/snapshot"
)

// SystemHandlers serves health, status, audit and snapshot endpoints.
type SystemHandlers struct {
	db        *database.DB
	audit     *audit.Service
	auditRepo *audit.Repository
	snapshots *snapshot.Service
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(
	db *database.DB,
	auditSvc *audit.Service,
	auditRepo *audit.Repository,
	snapshotSvc *snapshot.Service,
	log zerolog.Logger,
) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		audit:     auditSvc,
		auditRepo: auditRepo,
		snapshots: snapshotSvc,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth handles GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SystemStatusResponse is the body of GET /api/system/status.
type SystemStatusResponse struct {
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	DBSizeBytes   int64   `json:"db_size_bytes"`
	WALSizeBytes  int64   `json:"wal_size_bytes"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.systemStats()

	resp := SystemStatusResponse{
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
	}
	if stats, err := h.db.GetStats(); err == nil {
		resp.DBSizeBytes = stats.SizeBytes
		resp.WALSizeBytes = stats.WALSizeBytes
	} else {
		h.log.Warn().Err(err).Msg("Failed to get database stats")
	}

	writeJSON(w, http.StatusOK, resp)
}

// systemStats samples CPU and RAM usage. The 100ms CPU window keeps the
// endpoint responsive for dashboard polling.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuAvg, 0
	}
	return cpuAvg, memStat.UsedPercent
}

// HandleTriggerDailySnapshot handles POST /api/system/jobs/daily-snapshot
func (h *SystemHandlers) HandleTriggerDailySnapshot(w http.ResponseWriter, r *http.Request) {
	h.log.Info().Msg("Manual daily snapshot triggered")

	if err := h.snapshots.RunDaily(); err != nil {
		h.log.Error().Err(err).Msg("Daily snapshot run failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Daily snapshot run complete",
	})
}

// HandleClientPortfolio handles GET /api/clients/{id}/portfolio
func (h *SystemHandlers) HandleClientPortfolio(w http.ResponseWriter, r *http.Request) {
	clientID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	p, err := h.snapshots.Portfolio(clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleAuditList handles GET /api/audit - optional actor_id and action
// query filters.
func (h *SystemHandlers) HandleAuditList(w http.ResponseWriter, r *http.Request) {
	f := audit.Filter{Action: r.URL.Query().Get("action")}
	if raw := r.URL.Query().Get("actor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid actor_id"})
			return
		}
		f.ActorID = &id
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		f.Limit = limit
	}

	entries, err := h.auditRepo.List(h.db.Conn(), f)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list audit entries")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponses(entries))
}

// HandleAuditVerify handles GET /api/audit/verify - walk the hash chain.
func (h *SystemHandlers) HandleAuditVerify(w http.ResponseWriter, r *http.Request) {
	result, err := h.audit.Verify(h.db.Conn())
	if err != nil {
		h.log.Error().Err(err).Msg("Audit verification failed to run")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

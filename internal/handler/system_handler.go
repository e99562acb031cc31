package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/umtp/assist-gateway/internal/response"
)

const metricsInterval = 7 * time.Second

// QueueLener reports the depth of the event log queue. *worker.LogWorker implements it.
type QueueLener interface {
	QueueLen() int
}

// SystemHandler serves liveness and a runtime metrics stream.
type SystemHandler struct {
	rdb       *redis.Client
	queue     QueueLener
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. rdb is nil when stores are in memory.
func NewSystemHandler(rdb *redis.Client, queue QueueLener, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		queue:     queue,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthStatus struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Redis  string `json:"redis"`
}

// Health godoc
// GET /health
// Reports 503 when the configured Redis cannot be reached.
func (h *SystemHandler) Health(c *gin.Context) {
	st := healthStatus{
		Status: "ok",
		Uptime: formatDuration(time.Since(h.startTime)),
		Redis:  "disabled",
	}

	if h.rdb != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			h.log.Warn().Err(err).Msg("Redis ping failed")
			st.Status = "degraded"
			st.Redis = "unreachable"
			response.Success(c, http.StatusServiceUnavailable, st)
			return
		}
		st.Redis = "ok"
	}

	response.Success(c, http.StatusOK, st)
}

// ---------- SSE Endpoint ----------

type runtimeMetrics struct {
	Timestamp  int64  `json:"timestamp"`
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	LogQueue   int    `json:"log_queue"`
}

// RuntimeMetricsSSE godoc
// GET /api/v1/system/metrics
// Streams Go runtime figures and the event log backlog every few seconds.
func (h *SystemHandler) RuntimeMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect())
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect() runtimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := runtimeMetrics{
		Timestamp:  time.Now().Unix(),
		Uptime:     formatDuration(time.Since(h.startTime)),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		NumGC:      ms.NumGC,
		GoVersion:  runtime.Version(),
	}
	if h.queue != nil {
		m.LogQueue = h.queue.QueueLen()
	}
	return m
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shineIB/flowsync/internal/analysis"
	"github.com/shineIB/flowsync/internal/middleware"
	"github.com/shineIB/flowsync/internal/models"
	"github.com/shineIB/flowsync/internal/session"
	"github.com/shineIB/flowsync/internal/utils"
)

const maxFrameSize = 64 * 1024

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type Handlers struct {
	log         *zap.Logger
	hub         *session.Hub
	analyzer    *analysis.Service
	rdb         *redis.Client
	idleTimeout time.Duration
}

func NewHandlers(log *zap.Logger, hub *session.Hub, analyzer *analysis.Service, rdb *redis.Client, idleTimeout time.Duration) *Handlers {
	return &Handlers{
		log:         log,
		hub:         hub,
		analyzer:    analyzer,
		rdb:         rdb,
		idleTimeout: idleTimeout,
	}
}

/*** Collaboration WebSocket: one connection per client, id in the path ***/

func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	// The route pattern guarantees a non-empty client_id.
	clientID := chi.URLParam(r, "client_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := h.hub.NewClient(clientID, conn)
	h.hub.Join(client)

	// The write loop owns closing the conn on write failure so the
	// read loop below unblocks immediately instead of waiting out the
	// idle deadline.
	go func() {
		client.WriteLoop()
		_ = conn.Close()
	}()

	defer func() {
		h.hub.Leave(client)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		h.hub.HandleInbound(client, raw)
	}
}

/*** HTTP endpoints ***/

func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"service":           "FlowSync API",
		"status":            "running",
		"connected_clients": h.hub.Registry().Total(),
		"redis_connected":   h.pingRedis(r.Context()),
		"gemini_configured": h.analyzer.Configured(),
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	redisOK := h.pingRedis(r.Context())

	status := "healthy"
	redisStatus := "connected"
	if !redisOK {
		status = "degraded"
		redisStatus = "disconnected"
	}

	utils.JSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"redis":             redisStatus,
		"websocket_clients": h.hub.Registry().Total(),
	})
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	if h.hub == nil {
		checks["hub"] = "failed"
		ready = false
	} else {
		checks["hub"] = "ok"
	}

	if h.pingRedis(r.Context()) {
		checks["redis"] = "ok"
	} else {
		// The bridge degrades to local-only; the instance still serves.
		checks["redis"] = "degraded"
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	utils.JSON(w, code, map[string]any{"status": status, "checks": checks})
}

// Diagram returns the current shadow of the shared canvas so a late
// joiner can bootstrap its view.
func (h *Handlers) Diagram(w http.ResponseWriter, _ *http.Request) {
	nodes, edges := h.hub.Diagram().Snapshot()
	utils.JSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"edges": edges,
	})
}

func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.AnalyzeRequest](r)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	resp, err := h.analyzer.Analyze(ctx, req)
	if err != nil {
		utils.JSON(w, http.StatusBadGateway, models.ErrorResponse{
			Code:    "analysis_unavailable",
			Message: "Analysis is temporarily unavailable, please try again later",
		})
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *Handlers) pingRedis(ctx context.Context) bool {
	if h.rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.rdb.Ping(ctx).Err() == nil
}

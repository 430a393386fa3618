package handler

import (
	"context"
	"net/http"
	"time"

	httputil "boxoffice/pkg/http"
	"boxoffice/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/mongo"
)

type HealthHandler struct {
	mongo *mongo.Client // nil when the catalog backend is in-memory
	log   *logger.Logger
}

func NewHealthHandler(mongoClient *mongo.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		mongo: mongoClient,
		log:   log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		h.log.Error("failed to write health response", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if h.mongo != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.mongo.Ping(ctx, nil); err != nil {
			h.log.Warn("Readiness check failed: MongoDB unreachable", "error", err)
			if writeErr := httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"}); writeErr != nil {
				h.log.Error("failed to write readiness response", "error", writeErr)
			}
			return
		}
	}
	if err := httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"}); err != nil {
		h.log.Error("failed to write readiness response", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

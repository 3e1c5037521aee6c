package http

import (
	"net/http"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RelayHandler exposes the relay's HTTP surface: the websocket
// endpoint plus the operational endpoints around it.
type RelayHandler struct {
	rooms    ports.RoomService
	presence ports.PresenceRepository
	health   *monitoring.HealthChecker
	ws       http.HandlerFunc

	metricsEnabled bool
}

func NewRelayHandler(
	rooms ports.RoomService,
	presence ports.PresenceRepository,
	health *monitoring.HealthChecker,
	ws http.HandlerFunc,
	metricsEnabled bool,
) *RelayHandler {
	return &RelayHandler{
		rooms:          rooms,
		presence:       presence,
		health:         health,
		ws:             ws,
		metricsEnabled: metricsEnabled,
	}
}

func (h *RelayHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", gin.WrapF(h.ws))
	router.GET("/health", h.Health)
	router.GET("/stats", h.Stats)
	router.GET("/rooms/:id", h.Room)

	if h.metricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

func (h *RelayHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// Stats reports this instance's rooms and, when a presence store is
// configured, the fleet-wide occupancy snapshot.
func (h *RelayHandler) Stats(c *gin.Context) {
	rooms, err := h.rooms.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"rooms":     rooms,
		"timestamp": time.Now(),
	}

	if h.presence != nil {
		if snapshot, err := h.presence.Snapshot(c.Request.Context()); err == nil {
			resp["presence"] = snapshot
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *RelayHandler) Room(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	rooms, err := h.rooms.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for _, room := range rooms {
		if room.ID == roomID {
			c.JSON(http.StatusOK, gin.H{"room": room})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrRoomNotFound.Error()})
}

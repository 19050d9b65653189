package sink

import (
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config configures the local ingestion sink. RateLimitRatio and ErrorRatio
// are the fractions of requests answered 429 and 500, for exercising the
// poster's retry path.
type Config struct {
	RateLimitRatio float64
	ErrorRatio     float64
}

// Handler is a stand-in for the metering platform's ingestion endpoint. It
// accepts single events, counts them, and optionally injects transient
// failures.
type Handler struct {
	config   Config
	router   *gin.Engine
	log      *zap.Logger
	accepted atomic.Int64

	mu   sync.Mutex
	rand *rand.Rand
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type ingestRequest struct {
	EventID            string         `json:"event_id" binding:"required"`
	EventName          string         `json:"event_name" binding:"required"`
	ExternalCustomerID string         `json:"external_customer_id" binding:"required"`
	Source             string         `json:"source"`
	Properties         map[string]any `json:"properties"`
}

// NewHandler creates a new sink handler
func NewHandler(config Config, log *zap.Logger) *Handler {
	gin.SetMode(gin.ReleaseMode)

	h := &Handler{
		config: config,
		router: gin.New(),
		log:    log,
		rand:   rand.New(rand.NewSource(rand.Int63())),
	}

	h.router.Use(gin.Recovery())
	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/v1/events/ingest", h.ingestEvent)
	h.router.GET("/v1/events/count", h.eventCount)
}

// Accepted returns how many events the sink has accepted so far
func (h *Handler) Accepted() int64 {
	return h.accepted.Load()
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ingestEvent handles POST /v1/events/ingest the way the real metering API
// does: bind, validate, 202
func (h *Handler) ingestEvent(c *gin.Context) {
	if status, ok := h.injectFault(); ok {
		c.JSON(status, ErrorResponse{Error: "injected_fault"})
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid ingest request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	h.accepted.Add(1)
	h.log.Debug("Event accepted",
		zap.String("event_id", req.EventID),
		zap.String("event_name", req.EventName))

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Event accepted for processing",
		"event_id": req.EventID,
	})
}

// eventCount handles GET /v1/events/count for quick cross-checks against
// the generator's accepted total
func (h *Handler) eventCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.accepted.Load()})
}

// injectFault decides whether this request is answered with a transient
// failure instead of being accepted
func (h *Handler) injectFault() (int, bool) {
	if h.config.RateLimitRatio <= 0 && h.config.ErrorRatio <= 0 {
		return 0, false
	}

	h.mu.Lock()
	roll := h.rand.Float64()
	h.mu.Unlock()

	if roll < h.config.RateLimitRatio {
		return http.StatusTooManyRequests, true
	}
	if roll < h.config.RateLimitRatio+h.config.ErrorRatio {
		return http.StatusInternalServerError, true
	}
	return 0, false
}

package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dedupTTL bounds how long a delivery is remembered for replay
// suppression. Zoom retries failed deliveries within minutes.
const dedupTTL = 10 * time.Minute

// eventPayload is the inbound Zoom webhook body. Object.ID is a number
// for meeting events, so json.Number keeps it lossless.
type eventPayload struct {
	Event   string `json:"event"`
	EventTS int64  `json:"event_ts"`
	Payload struct {
		PlainToken string `json:"plainToken"`
		Object     struct {
			ID    json.Number `json:"id"`
			UUID  string      `json:"uuid"`
			Topic string      `json:"topic"`
		} `json:"object"`
	} `json:"payload"`
}

// Handler receives Zoom webhook deliveries. It always acknowledges with
// 200 regardless of processing outcome, to prevent provider-side retry
// storms.
type Handler struct {
	dispatcher *Dispatcher
	secret     string        // webhook secret token; empty disables validation
	rdb        *redis.Client // nil disables delivery dedup
	logger     *zap.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(dispatcher *Dispatcher, secret string, rdb *redis.Client, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dispatcher: dispatcher, secret: secret, rdb: rdb, logger: logger}
}

// Receive handles POST /webhooks/zoom.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	var ev eventPayload
	if err := json.Unmarshal(body, &ev); err != nil {
		h.logger.Warn("unparseable webhook body dropped", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	// Zoom's endpoint ownership challenge: echo the plain token with
	// its HMAC under the webhook secret.
	if ev.Event == EventURLValidation {
		c.JSON(http.StatusOK, gin.H{
			"plainToken":     ev.Payload.PlainToken,
			"encryptedToken": h.sign(ev.Payload.PlainToken),
		})
		return
	}

	if h.secret != "" && !h.verifySignature(c, body) {
		h.logger.Warn("webhook signature mismatch, event dropped",
			zap.String("event", ev.Event))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	meetingID := ev.Payload.Object.ID.String()
	if h.duplicateDelivery(c, ev, meetingID) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := h.dispatcher.Dispatch(c.Request.Context(), ev.Event, meetingID); err != nil {
		// Still acknowledged; the retry scheduler and idempotent
		// discovery absorb transient failures.
		h.logger.Error("webhook dispatch failed",
			zap.String("event", ev.Event),
			zap.String("meeting_id", meetingID),
			zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// verifySignature checks the x-zm-signature header:
// v0=HMAC-SHA256("v0:{timestamp}:{body}", secret).
func (h *Handler) verifySignature(c *gin.Context, body []byte) bool {
	sig := c.GetHeader("x-zm-signature")
	ts := c.GetHeader("x-zm-request-timestamp")
	if sig == "" || ts == "" {
		return false
	}
	expected := "v0=" + h.sign(fmt.Sprintf("v0:%s:%s", ts, body))
	return hmac.Equal([]byte(sig), []byte(expected))
}

func (h *Handler) sign(msg string) string {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// duplicateDelivery suppresses provider delivery retries via Redis
// SETNX. Dispatch is idempotent anyway; this just avoids redundant
// provider round trips during discovery.
func (h *Handler) duplicateDelivery(c *gin.Context, ev eventPayload, meetingID string) bool {
	if h.rdb == nil || meetingID == "" {
		return false
	}
	key := fmt.Sprintf("webhook:seen:%s:%s:%d", ev.Event, meetingID, ev.EventTS)
	ok, err := h.rdb.SetNX(c.Request.Context(), key, 1, dedupTTL).Result()
	if err != nil {
		// Redis down never blocks webhook processing.
		return false
	}
	if !ok {
		h.logger.Debug("duplicate webhook delivery suppressed",
			zap.String("event", ev.Event),
			zap.String("meeting_id", meetingID))
	}
	return !ok
}

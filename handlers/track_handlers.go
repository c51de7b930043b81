package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mabletask/insights/metrics"
	"mabletask/insights/models"
	"mabletask/insights/store"
)

const maxTrackBatch = 500

type TrackHandlers struct {
	Warehouse store.Warehouse
	Timeout   time.Duration
	now       func() time.Time
}

func NewTrackHandlers(w store.Warehouse, timeout time.Duration) *TrackHandlers {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TrackHandlers{Warehouse: w, Timeout: timeout, now: time.Now}
}

// TrackEvent writes a batch of page views to today's intraday partition. All
// events of one request share a batch page id; their order in the payload is
// kept as the batch event index so that equal timestamps still sort.
func (h *TrackHandlers) TrackEvent(c *gin.Context) {
	if h.Warehouse == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event warehouse is not configured"})
		return
	}

	var incoming []models.TrackedPageView
	if err := c.ShouldBindJSON(&incoming); err != nil {
		slog.Warn("error binding tracked page views", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(incoming) == 0 {
		c.Status(http.StatusOK)
		return
	}
	if len(incoming) > maxTrackBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Too many events in one request"})
		return
	}

	received := h.now().UTC()
	batchID := uuid.New()
	pageID := int64(batchID.ID())

	events := make([]models.RawPageViewEvent, 0, len(incoming))
	for i, tv := range incoming {
		if tv.SessionID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId must be positive"})
			return
		}
		ts := tv.Timestamp.UTC()
		if tv.Timestamp.IsZero() || ts.After(received) {
			ts = received
		}
		sessionID := tv.SessionID
		events = append(events, models.RawPageViewEvent{
			EventName:       models.PageViewEvent,
			UserPseudoID:    tv.UserPseudoID,
			SessionID:       &sessionID,
			EventTimestamp:  ts,
			PageLocation:    tv.PageLocation,
			PageTitle:       tv.PageTitle,
			BatchPageID:     pageID,
			BatchOrderingID: received.UnixMilli(),
			BatchEventIndex: int64(i),
		})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	if err := h.Warehouse.InsertPageViews(ctx, events); err != nil {
		slog.Error("error inserting page views", "batch", batchID.String(), "count", len(events), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record page views"})
		return
	}
	metrics.IngestedEvents.Add(float64(len(events)))

	c.JSON(http.StatusAccepted, gin.H{"batchId": batchID.String(), "accepted": len(events)})
}

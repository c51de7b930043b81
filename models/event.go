package models

import "time"

const PageViewEvent = "page_view"

// RawPageViewEvent is one page_view row as stored in the warehouse.
// Timestamps are not unique at ingestion granularity, so the batch fields
// break ties between events of the same session.
type RawPageViewEvent struct {
	EventName       string    `json:"eventName"`
	UserPseudoID    string    `json:"userPseudoId"`
	SessionID       *int64    `json:"sessionId,omitempty"`
	EventTimestamp  time.Time `json:"eventTimestamp"`
	PageLocation    string    `json:"pageLocation"`
	PageTitle       string    `json:"pageTitle"`
	BatchPageID     int64     `json:"batchPageId"`
	BatchOrderingID int64     `json:"batchOrderingId"`
	BatchEventIndex int64     `json:"batchEventIndex"`
}

// OrderingKey is the total order of events within a session.
type OrderingKey struct {
	EventTimestamp  time.Time
	BatchPageID     int64
	BatchOrderingID int64
	BatchEventIndex int64
}

// Less orders by timestamp, then by each batch field in turn.
func (k OrderingKey) Less(o OrderingKey) bool {
	if !k.EventTimestamp.Equal(o.EventTimestamp) {
		return k.EventTimestamp.Before(o.EventTimestamp)
	}
	if k.BatchPageID != o.BatchPageID {
		return k.BatchPageID < o.BatchPageID
	}
	if k.BatchOrderingID != o.BatchOrderingID {
		return k.BatchOrderingID < o.BatchOrderingID
	}
	return k.BatchEventIndex < o.BatchEventIndex
}

// NormalizedPageView is a page view after session attribution and path canonicalization.
type NormalizedPageView struct {
	SessionKey     string      `json:"sessionKey"`
	UserPseudoID   string      `json:"userPseudoId"`
	EventTimestamp time.Time   `json:"eventTimestamp"`
	CanonicalPath  string      `json:"canonicalPath"`
	Title          *string     `json:"title,omitempty"`
	OrderingKey    OrderingKey `json:"-"`
}

// TrackedPageView is the ingestion payload sent by the web client.
type TrackedPageView struct {
	UserPseudoID string    `json:"userPseudoId" binding:"required"`
	SessionID    int64     `json:"sessionId" binding:"required"`
	Timestamp    time.Time `json:"timestamp"`
	PageLocation string    `json:"pageLocation" binding:"required"`
	PageTitle    string    `json:"pageTitle"`
}

package events

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeSanitization is sent after every sanitized image
	EventTypeSanitization EventType = "sanitization"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// SanitizationEvent describes one sanitized image. Matched values are never
// included.
type SanitizationEvent struct {
	RequestID    string   `json:"request_id,omitempty"`
	Source       string   `json:"source"`
	ImageSHA256  string   `json:"image_sha256"`
	Method       string   `json:"method"`
	Scanned      bool     `json:"scanned"`
	Reason       string   `json:"reason"`
	Categories   []string `json:"categories"`
	Findings     int      `json:"findings"`
	Regions      int      `json:"regions"`
	CacheHit     bool     `json:"cache_hit"`
	ProcessingMS float64  `json:"processing_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalImages      int64  `json:"total_images"`
	TotalRedacted    int64  `json:"total_redacted"`
	TotalUnscanned   int64  `json:"total_unscanned"`
	ActiveDetectors  int    `json:"active_detectors"`
	OCREngine        string `json:"ocr_engine"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows which sanitization events a client receives
type EventFilter struct {
	// Categories keeps events that fired at least one of these categories
	Categories []string `json:"categories,omitempty"`
	// Sources keeps events from these sources (http, cli, batch)
	Sources []string `json:"sources,omitempty"`
	// OnlyUnscanned keeps events where OCR produced nothing to scan
	OnlyUnscanned bool `json:"only_unscanned,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}

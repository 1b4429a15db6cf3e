package domain

import "time"

// Channel is the delivery channel for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// AllChannels lists every valid channel, in the order adapters are wired.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush}

// Priority controls dispatch ordering. Critical is processed first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Weight orders priorities for SQL and in-memory sorting; higher runs first.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Status tracks the lifecycle of a queue item.
//
// Transitions are monotonic: pending -> processing -> {sent|failed|skipped}.
// Terminal rows are immutable history; a retry job may enqueue a derived
// copy but never reopens the original.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ChannelResult records the outcome of one channel attempt for a queue item.
type ChannelResult struct {
	Channel      Channel `json:"channel"`
	Success      bool    `json:"success"`
	Skipped      bool    `json:"skipped,omitempty"`
	ProviderUsed string  `json:"provider_used,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// QueueItem is a durable notification request, written by application
// events and drained by the dispatcher.
type QueueItem struct {
	ID             string          `json:"id"`
	Recipient      string          `json:"recipient"`
	Trigger        string          `json:"trigger"`
	Priority       Priority        `json:"priority"`
	Channels       []Channel       `json:"channels"`
	TemplateData   map[string]any  `json:"template_data,omitempty"`
	Status         Status          `json:"status"`
	Attempts       int             `json:"attempts"`
	ChannelResults []ChannelResult `json:"channel_results,omitempty"`
	ScheduledFor   time.Time       `json:"scheduled_for"`
	OpenCount      int             `json:"open_count"`
	ClickCount     int             `json:"click_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Template is a versioned, per-channel message template keyed by trigger.
// Read-only at dispatch time; edited out of band.
type Template struct {
	ID        string    `json:"id"`
	Trigger   string    `json:"trigger"`
	Channel   Channel   `json:"channel"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Enabled   bool      `json:"enabled"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrackingEventType distinguishes open-pixel hits from link clicks.
type TrackingEventType string

const (
	EventOpen  TrackingEventType = "open"
	EventClick TrackingEventType = "click"
)

// TrackingEvent is one engagement event. IP is coarsened before the event
// reaches persistence; the raw address is never stored.
type TrackingEvent struct {
	ID          string            `json:"id"`
	TrackingID  string            `json:"tracking_id"`
	EventType   TrackingEventType `json:"event_type"`
	LinkType    string            `json:"link_type,omitempty"`
	Destination string            `json:"destination,omitempty"`
	IP          string            `json:"ip"`
	UserAgent   string            `json:"user_agent"`
	CreatedAt   time.Time         `json:"created_at"`
}

// PushSubscription maps a recipient to one registered device token.
type PushSubscription struct {
	ID          string    `json:"id"`
	Recipient   string    `json:"recipient"`
	DeviceToken string    `json:"device_token"`
	Platform    string    `json:"platform,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EnqueueRequest is the producer-facing payload for a new notification.
type EnqueueRequest struct {
	Recipient    string         `json:"recipient"`
	Trigger      string         `json:"trigger"`
	Channels     []Channel      `json:"channels"`
	TemplateData map[string]any `json:"template_data,omitempty"`
	Priority     Priority       `json:"priority"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
}

func (r *EnqueueRequest) Validate() error {
	if r.Recipient == "" {
		return ErrInvalidRecipient
	}
	if r.Trigger == "" {
		return ErrInvalidTrigger
	}
	if len(r.Channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range r.Channels {
		if !ch.IsValid() {
			return ErrInvalidChannel
		}
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if !r.Priority.IsValid() {
		return ErrInvalidPriority
	}
	return nil
}

// EngagementStats is the aggregated analytics view over terminal queue
// items and tracking events.
type EngagementStats struct {
	TotalSent    int     `json:"total_sent"`
	TotalFailed  int     `json:"total_failed"`
	TotalSkipped int     `json:"total_skipped"`
	TotalOpens   int     `json:"total_opens"`
	TotalClicks  int     `json:"total_clicks"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

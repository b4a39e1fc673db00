package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/veloxpay/dispatch/catalog"
	"github.com/veloxpay/dispatch/delivery"
	"github.com/veloxpay/dispatch/dlq"
	"github.com/veloxpay/dispatch/event"
	"github.com/veloxpay/dispatch/history"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
	"github.com/veloxpay/dispatch/subscription"
)

// --- Event type models ---

type eventTypeModel struct {
	bun.BaseModel `bun:"table:dispatch_event_types"`

	ID            string            `bun:"id,pk"`
	Name          string            `bun:"name,unique,notnull"`
	Description   string            `bun:"description"`
	GroupName     string            `bun:"group_name"`
	Schema        json.RawMessage   `bun:"schema,type:jsonb"`
	SchemaVersion string            `bun:"schema_version"`
	Version       string            `bun:"version"`
	Example       json.RawMessage   `bun:"example,type:jsonb"`
	IsDeprecated  bool              `bun:"is_deprecated"`
	DeprecatedAt  *time.Time        `bun:"deprecated_at"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	CreatedAt     time.Time         `bun:"created_at,notnull"`
	UpdatedAt     time.Time         `bun:"updated_at,notnull"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:            et.ID.String(),
		Name:          et.Definition.Name,
		Description:   et.Definition.Description,
		GroupName:     et.Definition.Group,
		Schema:        et.Definition.Schema,
		SchemaVersion: et.Definition.SchemaVersion,
		Version:       et.Definition.Version,
		Example:       et.Definition.Example,
		IsDeprecated:  et.IsDeprecated,
		DeprecatedAt:  et.DeprecatedAt,
		Metadata:      et.Metadata,
		CreatedAt:     et.CreatedAt,
		UpdatedAt:     et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.ParseEventTypeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
	}
	return &catalog.EventType{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID: etID,
		Definition: catalog.Definition{
			Name:          m.Name,
			Description:   m.Description,
			Group:         m.GroupName,
			Schema:        m.Schema,
			SchemaVersion: m.SchemaVersion,
			Version:       m.Version,
			Example:       m.Example,
		},
		IsDeprecated: m.IsDeprecated,
		DeprecatedAt: m.DeprecatedAt,
		Metadata:     m.Metadata,
	}, nil
}

// --- Subscription models ---

type subscriptionModel struct {
	bun.BaseModel `bun:"table:dispatch_subscriptions"`

	ID              string            `bun:"id,pk"`
	TenantID        string            `bun:"tenant_id,notnull"`
	URL             string            `bun:"url,notnull"`
	Description     string            `bun:"description"`
	Secret          string            `bun:"secret,notnull"`
	EventTypes      []string          `bun:"event_types,type:jsonb"`
	Status          string            `bun:"status,notnull"`
	MaxRetries      int               `bun:"max_retries,notnull"`
	FailureCount    int               `bun:"failure_count,notnull,default:0"`
	LastTriggeredAt *time.Time        `bun:"last_triggered_at"`
	Headers         map[string]string `bun:"headers,type:jsonb"`
	RateLimit       int               `bun:"rate_limit"`
	Metadata        map[string]string `bun:"metadata,type:jsonb"`
	CreatedAt       time.Time         `bun:"created_at,notnull"`
	UpdatedAt       time.Time         `bun:"updated_at,notnull"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:              sub.ID.String(),
		TenantID:        sub.TenantID,
		URL:             sub.URL,
		Description:     sub.Description,
		Secret:          sub.Secret,
		EventTypes:      sub.EventTypes,
		Status:          string(sub.Status),
		MaxRetries:      sub.MaxRetries,
		FailureCount:    sub.FailureCount,
		LastTriggeredAt: sub.LastTriggeredAt,
		Headers:         sub.Headers,
		RateLimit:       sub.RateLimit,
		Metadata:        sub.Metadata,
		CreatedAt:       sub.CreatedAt,
		UpdatedAt:       sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              subID,
		TenantID:        m.TenantID,
		URL:             m.URL,
		Description:     m.Description,
		Secret:          m.Secret,
		EventTypes:      m.EventTypes,
		Status:          subscription.Status(m.Status),
		MaxRetries:      m.MaxRetries,
		FailureCount:    m.FailureCount,
		LastTriggeredAt: m.LastTriggeredAt,
		Headers:         m.Headers,
		RateLimit:       m.RateLimit,
		Metadata:        m.Metadata,
	}, nil
}

// --- Event models ---

type eventModel struct {
	bun.BaseModel `bun:"table:dispatch_events"`

	ID             string          `bun:"id,pk"`
	Type           string          `bun:"type,notnull"`
	TenantID       string          `bun:"tenant_id,notnull"`
	Data           json.RawMessage `bun:"data,type:jsonb"`
	IdempotencyKey string          `bun:"idempotency_key"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull"`
}

func toEventModel(evt *event.Event) (*eventModel, error) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return &eventModel{
		ID:             evt.ID.String(),
		Type:           evt.Type,
		TenantID:       evt.TenantID,
		Data:           data,
		IdempotencyKey: evt.IdempotencyKey,
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.UpdatedAt,
	}, nil
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	var data any
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             evtID,
		Type:           m.Type,
		TenantID:       m.TenantID,
		Data:           data,
		IdempotencyKey: m.IdempotencyKey,
	}, nil
}

// --- Delivery models ---

type deliveryModel struct {
	bun.BaseModel `bun:"table:dispatch_deliveries"`

	ID             string     `bun:"id,pk"`
	EventID        string     `bun:"event_id,notnull"`
	SubscriptionID string     `bun:"subscription_id,notnull"`
	State          string     `bun:"state,notnull"`
	AttemptCount   int        `bun:"attempt_count,notnull,default:0"`
	MaxAttempts    int        `bun:"max_attempts,notnull"`
	NextAttemptAt  time.Time  `bun:"next_attempt_at,notnull"`
	ClaimedAt      *time.Time `bun:"claimed_at"`
	LastError      string     `bun:"last_error"`
	LastStatusCode int        `bun:"last_status_code"`
	LastResponse   string     `bun:"last_response"`
	LastLatencyMs  int        `bun:"last_latency_ms"`
	CompletedAt    *time.Time `bun:"completed_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		EventID:        d.EventID.String(),
		SubscriptionID: d.SubscriptionID.String(),
		State:          string(d.State),
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		NextAttemptAt:  d.NextAttemptAt,
		LastError:      d.LastError,
		LastStatusCode: d.LastStatusCode,
		LastResponse:   d.LastResponse,
		LastLatencyMs:  d.LastLatencyMs,
		CompletedAt:    d.CompletedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		EventID:        evtID,
		SubscriptionID: subID,
		State:          delivery.State(m.State),
		AttemptCount:   m.AttemptCount,
		MaxAttempts:    m.MaxAttempts,
		NextAttemptAt:  m.NextAttemptAt,
		LastError:      m.LastError,
		LastStatusCode: m.LastStatusCode,
		LastResponse:   m.LastResponse,
		LastLatencyMs:  m.LastLatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// --- Attempt models ---

type attemptModel struct {
	bun.BaseModel `bun:"table:dispatch_attempts"`

	ID             string     `bun:"id,pk"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	SubscriptionID string     `bun:"subscription_id,notnull"`
	EventID        string     `bun:"event_id,notnull"`
	EventType      string     `bun:"event_type"`
	Attempt        int        `bun:"attempt,notnull"`
	Payload        []byte     `bun:"payload"`
	Signature      string     `bun:"signature"`
	StatusCode     int        `bun:"status_code"`
	Response       string     `bun:"response"`
	Error          string     `bun:"error"`
	DeliveredAt    *time.Time `bun:"delivered_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func toAttemptModel(att *history.Attempt) *attemptModel {
	return &attemptModel{
		ID:             att.ID.String(),
		DeliveryID:     att.DeliveryID.String(),
		SubscriptionID: att.SubscriptionID.String(),
		EventID:        att.EventID.String(),
		EventType:      att.EventType,
		Attempt:        att.Attempt,
		Payload:        att.Payload,
		Signature:      att.Signature,
		StatusCode:     att.StatusCode,
		Response:       att.Response,
		Error:          att.Error,
		DeliveredAt:    att.DeliveredAt,
		CreatedAt:      att.CreatedAt,
		UpdatedAt:      att.UpdatedAt,
	}
}

func fromAttemptModel(m *attemptModel) (*history.Attempt, error) {
	attID, err := id.ParseAttemptID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse attempt ID %q: %w", m.ID, err)
	}
	delID, err := id.ParseDeliveryID(m.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.DeliveryID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	return &history.Attempt{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             attID,
		DeliveryID:     delID,
		SubscriptionID: subID,
		EventID:        evtID,
		EventType:      m.EventType,
		Attempt:        m.Attempt,
		Payload:        m.Payload,
		Signature:      m.Signature,
		StatusCode:     m.StatusCode,
		Response:       m.Response,
		Error:          m.Error,
		DeliveredAt:    m.DeliveredAt,
	}, nil
}

// --- DLQ models ---

type dlqEntryModel struct {
	bun.BaseModel `bun:"table:dispatch_dlq"`

	ID             string     `bun:"id,pk"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	EventID        string     `bun:"event_id,notnull"`
	SubscriptionID string     `bun:"subscription_id,notnull"`
	EventType      string     `bun:"event_type"`
	TenantID       string     `bun:"tenant_id"`
	URL            string     `bun:"url"`
	Payload        []byte     `bun:"payload"`
	Error          string     `bun:"error"`
	AttemptCount   int        `bun:"attempt_count"`
	LastStatusCode int        `bun:"last_status_code"`
	FailedAt       time.Time  `bun:"failed_at,notnull"`
	ReplayedAt     *time.Time `bun:"replayed_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:             e.ID.String(),
		DeliveryID:     e.DeliveryID.String(),
		EventID:        e.EventID.String(),
		SubscriptionID: e.SubscriptionID.String(),
		EventType:      e.EventType,
		TenantID:       e.TenantID,
		URL:            e.URL,
		Payload:        e.Payload,
		Error:          e.Error,
		AttemptCount:   e.AttemptCount,
		LastStatusCode: e.LastStatusCode,
		FailedAt:       e.FailedAt,
		ReplayedAt:     e.ReplayedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	entryID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse dlq ID %q: %w", m.ID, err)
	}
	delID, err := id.ParseDeliveryID(m.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.DeliveryID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             entryID,
		DeliveryID:     delID,
		EventID:        evtID,
		SubscriptionID: subID,
		EventType:      m.EventType,
		TenantID:       m.TenantID,
		URL:            m.URL,
		Payload:        m.Payload,
		Error:          m.Error,
		AttemptCount:   m.AttemptCount,
		LastStatusCode: m.LastStatusCode,
		FailedAt:       m.FailedAt,
		ReplayedAt:     m.ReplayedAt,
	}, nil
}

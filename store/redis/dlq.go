package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/dlq"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
)

// dlqModel is the JSON representation stored in Redis.
type dlqModel struct {
	ID             string     `json:"id"`
	DeliveryID     string     `json:"delivery_id"`
	EventID        string     `json:"event_id"`
	SubscriptionID string     `json:"subscription_id"`
	EventType      string     `json:"event_type,omitempty"`
	TenantID       string     `json:"tenant_id,omitempty"`
	URL            string     `json:"url,omitempty"`
	Payload        []byte     `json:"payload,omitempty"`
	Error          string     `json:"error,omitempty"`
	AttemptCount   int        `json:"attempt_count"`
	LastStatusCode int        `json:"last_status_code,omitempty"`
	FailedAt       time.Time  `json:"failed_at"`
	ReplayedAt     *time.Time `json:"replayed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toDLQModel(e *dlq.Entry) *dlqModel {
	return &dlqModel{
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

func fromDLQModel(m *dlqModel) (*dlq.Entry, error) {
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

func (s *Store) CreateDLQEntry(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQModel(entry)

	if err := s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m); err != nil {
		return fmt.Errorf("dispatch/redis: create dlq entry: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDLQAll, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	pipe.ZAdd(ctx, zDLQSub+m.SubscriptionID, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: create dlq entry indexes: %w", err)
	}
	return nil
}

func (s *Store) GetDLQEntry(ctx context.Context, entryID id.ID) (*dlq.Entry, error) {
	var m dlqModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, dispatch.ErrDLQNotFound
		}
		return nil, fmt.Errorf("dispatch/redis: get dlq entry: %w", err)
	}
	return fromDLQModel(&m)
}

func (s *Store) ListDLQEntries(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	indexKey := zDLQAll
	if !opts.SubscriptionID.IsNil() {
		indexKey = zDLQSub + opts.SubscriptionID.String()
	}

	ids, err := s.rdb.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatch/redis: list dlq entries: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for _, entryID := range ids {
		var m dlqModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.EventType != "" && m.EventType != opts.EventType {
			continue
		}
		e, err := fromDLQModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) MarkReplayed(ctx context.Context, entryID id.ID) error {
	key := entityKey(prefixDLQ, entryID.String())

	var m dlqModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrDLQNotFound
		}
		return fmt.Errorf("dispatch/redis: mark replayed get: %w", err)
	}

	ts := now()
	m.ReplayedAt = &ts
	m.UpdatedAt = ts

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("dispatch/redis: mark replayed: %w", err)
	}
	return nil
}

func (s *Store) DeleteDLQEntry(ctx context.Context, entryID id.ID) error {
	key := entityKey(prefixDLQ, entryID.String())

	var m dlqModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrDLQNotFound
		}
		return fmt.Errorf("dispatch/redis: delete dlq entry get: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, zDLQAll, m.ID)
	pipe.ZRem(ctx, zDLQSub+m.SubscriptionID, m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: delete dlq entry: %w", err)
	}
	return nil
}

func (s *Store) CountDLQEntries(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("dispatch/redis: count dlq entries: %w", err)
	}
	return count, nil
}

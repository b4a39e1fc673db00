package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/history"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
)

// attemptModel is the JSON representation stored in Redis.
type attemptModel struct {
	ID             string     `json:"id"`
	DeliveryID     string     `json:"delivery_id"`
	SubscriptionID string     `json:"subscription_id"`
	EventID        string     `json:"event_id"`
	EventType      string     `json:"event_type,omitempty"`
	Attempt        int        `json:"attempt"`
	Payload        []byte     `json:"payload,omitempty"`
	Signature      string     `json:"signature,omitempty"`
	StatusCode     int        `json:"status_code,omitempty"`
	Response       string     `json:"response,omitempty"`
	Error          string     `json:"error,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
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

func (s *Store) CreateAttempt(ctx context.Context, att *history.Attempt) error {
	m := toAttemptModel(att)
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("dispatch/redis: create attempt marshal: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, entityKey(prefixAttempt, m.ID), raw, 0)
	pipe.ZAdd(ctx, zAttemptSub+m.SubscriptionID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zAttemptDel+m.DeliveryID, goredis.Z{Score: float64(m.Attempt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: create attempt: %w", err)
	}
	return nil
}

func (s *Store) CompleteAttempt(ctx context.Context, att *history.Attempt) error {
	key := entityKey(prefixAttempt, att.ID.String())

	var m attemptModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrAttemptNotFound
		}
		return fmt.Errorf("dispatch/redis: complete attempt get: %w", err)
	}

	m.StatusCode = att.StatusCode
	m.Response = att.Response
	m.Error = att.Error
	m.DeliveredAt = att.DeliveredAt
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("dispatch/redis: complete attempt: %w", err)
	}
	return nil
}

func (s *Store) RecentAttempts(ctx context.Context, subID id.ID, limit int) ([]*history.Attempt, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.rdb.ZRevRange(ctx, zAttemptSub+subID.String(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatch/redis: recent attempts: %w", err)
	}

	result := make([]*history.Attempt, 0, len(ids))
	for _, entryID := range ids {
		var m attemptModel
		if err := s.getEntity(ctx, entityKey(prefixAttempt, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		att, err := fromAttemptModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, att)
	}
	return result, nil
}

func (s *Store) ListAttemptsByDelivery(ctx context.Context, delID id.ID) ([]*history.Attempt, error) {
	ids, err := s.rdb.ZRange(ctx, zAttemptDel+delID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatch/redis: list attempts by delivery: %w", err)
	}

	result := make([]*history.Attempt, 0, len(ids))
	for _, entryID := range ids {
		var m attemptModel
		if err := s.getEntity(ctx, entityKey(prefixAttempt, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		att, err := fromAttemptModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, att)
	}
	return result, nil
}

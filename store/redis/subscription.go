package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
	"github.com/veloxpay/dispatch/subscription"
)

// subscriptionModel is the JSON representation stored in Redis.
type subscriptionModel struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenant_id"`
	URL             string            `json:"url"`
	Description     string            `json:"description,omitempty"`
	Secret          string            `json:"secret"`
	EventTypes      []string          `json:"event_types"`
	Status          string            `json:"status"`
	MaxRetries      int               `json:"max_retries"`
	FailureCount    int               `json:"failure_count"`
	LastTriggeredAt *time.Time        `json:"last_triggered_at,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	RateLimit       int               `json:"rate_limit,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
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

// recordFailureScript atomically bumps the failure counter inside the stored
// JSON and flips an active subscription to failed exactly once when the
// counter reaches the budget.
// KEYS[1] = subscription key, KEYS[2] = tenant active set
// ARGV[1] = subscription ID, ARGV[2] = timestamp (RFC3339)
var recordFailureScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return false end
local sub = cjson.decode(raw)
sub.failure_count = (sub.failure_count or 0) + 1
local escalated = 0
if sub.status == 'active' and sub.failure_count >= sub.max_retries then
    sub.status = 'failed'
    escalated = 1
    redis.call('SREM', KEYS[2], ARGV[1])
end
sub.updated_at = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(sub))
return {sub.failure_count, escalated}
`)

// recordSuccessScript atomically resets the failure counter and stamps the
// last successful delivery time.
// KEYS[1] = subscription key
// ARGV[1] = timestamp (RFC3339)
var recordSuccessScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return false end
local sub = cjson.decode(raw)
sub.failure_count = 0
sub.last_triggered_at = ARGV[1]
sub.updated_at = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(sub))
return 1
`)

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	key := entityKey(prefixSubscription, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("dispatch/redis: create subscription: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zSubTenant+m.TenantID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if m.Status == string(subscription.StatusActive) {
		pipe.SAdd(ctx, activeSetKey(m.TenantID), m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: create subscription indexes: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := s.getEntity(ctx, entityKey(prefixSubscription, subID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, dispatch.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("dispatch/redis: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	key := entityKey(prefixSubscription, sub.ID.String())

	var existing subscriptionModel
	if err := s.getEntity(ctx, key, &existing); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrSubscriptionNotFound
		}
		return fmt.Errorf("dispatch/redis: update subscription get: %w", err)
	}

	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("dispatch/redis: update subscription: %w", err)
	}

	if m.Status == string(subscription.StatusActive) {
		s.rdb.SAdd(ctx, activeSetKey(m.TenantID), m.ID)
	} else {
		s.rdb.SRem(ctx, activeSetKey(m.TenantID), m.ID)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	key := entityKey(prefixSubscription, subID.String())

	var m subscriptionModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrSubscriptionNotFound
		}
		return fmt.Errorf("dispatch/redis: delete subscription get: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, zSubTenant+m.TenantID, m.ID)
	pipe.SRem(ctx, activeSetKey(m.TenantID), m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: delete subscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, tenantID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.ZRange(ctx, zSubTenant+tenantID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatch/redis: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, 0, len(ids))
	for _, entryID := range ids {
		var m subscriptionModel
		if err := s.getEntity(ctx, entityKey(prefixSubscription, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Status != nil && subscription.Status(m.Status) != *opts.Status {
			continue
		}
		sub, err := fromSubscriptionModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) Resolve(ctx context.Context, tenantID, eventType string) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.SMembers(ctx, activeSetKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatch/redis: resolve: %w", err)
	}

	var result []*subscription.Subscription
	for _, entryID := range ids {
		var m subscriptionModel
		if err := s.getEntity(ctx, entityKey(prefixSubscription, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		sub, err := fromSubscriptionModel(&m)
		if err != nil {
			return nil, err
		}
		if sub.Status == subscription.StatusActive && sub.Subscribed(eventType) {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (s *Store) SetStatus(ctx context.Context, subID id.ID, status subscription.Status) error {
	key := entityKey(prefixSubscription, subID.String())

	var m subscriptionModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrSubscriptionNotFound
		}
		return fmt.Errorf("dispatch/redis: set status get: %w", err)
	}

	m.Status = string(status)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("dispatch/redis: set status: %w", err)
	}

	if status == subscription.StatusActive {
		s.rdb.SAdd(ctx, activeSetKey(m.TenantID), m.ID)
	} else {
		s.rdb.SRem(ctx, activeSetKey(m.TenantID), m.ID)
	}
	return nil
}

func (s *Store) RecordFailure(ctx context.Context, subID id.ID) (int, bool, error) {
	key := entityKey(prefixSubscription, subID.String())

	// The tenant ID is immutable, so a plain read before the script is safe.
	var m subscriptionModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return 0, false, dispatch.ErrSubscriptionNotFound
		}
		return 0, false, fmt.Errorf("dispatch/redis: record failure get: %w", err)
	}

	res, err := recordFailureScript.Run(ctx, s.rdb,
		[]string{key, activeSetKey(m.TenantID)},
		m.ID, now().Format(time.RFC3339Nano),
	).Int64Slice()
	if err != nil {
		if isRedisNil(err) {
			return 0, false, dispatch.ErrSubscriptionNotFound
		}
		return 0, false, fmt.Errorf("dispatch/redis: record failure: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("dispatch/redis: record failure: unexpected script result")
	}
	return int(res[0]), res[1] == 1, nil
}

func (s *Store) RecordSuccess(ctx context.Context, subID id.ID) error {
	key := entityKey(prefixSubscription, subID.String())

	err := recordSuccessScript.Run(ctx, s.rdb,
		[]string{key},
		now().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		if isRedisNil(err) {
			return dispatch.ErrSubscriptionNotFound
		}
		return fmt.Errorf("dispatch/redis: record success: %w", err)
	}
	return nil
}

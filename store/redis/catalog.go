package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/catalog"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
)

// eventTypeModel is the JSON representation stored in Redis.
type eventTypeModel struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Group         string            `json:"group,omitempty"`
	Schema        json.RawMessage   `json:"schema,omitempty"`
	SchemaVersion string            `json:"schema_version,omitempty"`
	Version       string            `json:"version,omitempty"`
	Example       json.RawMessage   `json:"example,omitempty"`
	IsDeprecated  bool              `json:"deprecated"`
	DeprecatedAt  *time.Time        `json:"deprecated_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:            et.ID.String(),
		Name:          et.Definition.Name,
		Description:   et.Definition.Description,
		Group:         et.Definition.Group,
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
			Group:         m.Group,
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

func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	// Upsert by name: reuse the existing ID when the name is already taken.
	existingID, err := s.rdb.Get(ctx, uniqueEventTypeName+et.Definition.Name).Result()
	if err != nil && !isRedisNil(err) {
		return fmt.Errorf("dispatch/redis: register type lookup: %w", err)
	}
	if err == nil {
		var existing eventTypeModel
		if getErr := s.getEntity(ctx, entityKey(prefixEventType, existingID), &existing); getErr == nil {
			etID, parseErr := id.ParseEventTypeID(existing.ID)
			if parseErr != nil {
				return fmt.Errorf("dispatch/redis: register type: %w", parseErr)
			}
			et.ID = etID
			et.CreatedAt = existing.CreatedAt
		}
	}

	m := toEventTypeModel(et)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, entityKey(prefixEventType, m.ID), m); err != nil {
		return fmt.Errorf("dispatch/redis: register type: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, uniqueEventTypeName+m.Name, m.ID, 0)
	pipe.ZAdd(ctx, zEventTypeAll, goredis.Z{Score: 0, Member: m.Name})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: register type indexes: %w", err)
	}
	return nil
}

func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	rawID, err := s.rdb.Get(ctx, uniqueEventTypeName+name).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, dispatch.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("dispatch/redis: get type: %w", err)
	}
	etID, err := id.ParseEventTypeID(rawID)
	if err != nil {
		return nil, fmt.Errorf("dispatch/redis: get type: %w", err)
	}
	return s.GetTypeByID(ctx, etID)
}

func (s *Store) GetTypeByID(ctx context.Context, etID id.ID) (*catalog.EventType, error) {
	var m eventTypeModel
	if err := s.getEntity(ctx, entityKey(prefixEventType, etID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, dispatch.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("dispatch/redis: get type by id: %w", err)
	}
	return fromEventTypeModel(&m)
}

func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	names, err := s.rdb.ZRangeByLex(ctx, zEventTypeAll, &goredis.ZRangeBy{Min: "-", Max: "+"}).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatch/redis: list types: %w", err)
	}

	result := make([]*catalog.EventType, 0, len(names))
	for _, name := range names {
		et, err := s.GetType(ctx, name)
		if err != nil {
			if errors.Is(err, dispatch.ErrEventTypeNotFound) {
				continue
			}
			return nil, err
		}
		if !opts.IncludeDeprecated && et.IsDeprecated {
			continue
		}
		if opts.Group != "" && et.Definition.Group != opts.Group {
			continue
		}
		result = append(result, et)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) DeleteType(ctx context.Context, name string) error {
	et, err := s.GetType(ctx, name)
	if err != nil {
		return err
	}

	m := toEventTypeModel(et)
	ts := now()
	m.IsDeprecated = true
	m.DeprecatedAt = &ts
	m.UpdatedAt = ts

	if err := s.setEntity(ctx, entityKey(prefixEventType, m.ID), m); err != nil {
		return fmt.Errorf("dispatch/redis: delete type: %w", err)
	}
	return nil
}

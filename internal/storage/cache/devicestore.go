package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
)

// StateClient defines the subset of Redis commands the store needs.
type StateClient interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	Del(ctx context.Context, key string) error
	HSet(ctx context.Context, key, field string, value interface{}) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Drain(ctx context.Context, key string) ([]string, error)
}

// DeviceStateStore keeps one device's notification state under a shared key
// prefix. Badge is a plain counter, the delivered history is a hash keyed by
// notification identifier and missed signals are a list the provider side
// appends to while the daemon is offline.
type DeviceStateStore struct {
	client   StateClient
	deviceID string
}

func NewDeviceStateStore(client StateClient, deviceID string) *DeviceStateStore {
	return &DeviceStateStore{client: client, deviceID: deviceID}
}

// --- Badge ---

// Badge returns the stored badge value, zero when the key is absent.
func (s *DeviceStateStore) Badge(ctx context.Context) (int, error) {
	var n int
	err := s.client.Get(ctx, s.key("badge"), &n)
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("badge read failed: %w", err)
	}
	return n, nil
}

func (s *DeviceStateStore) SetBadge(ctx context.Context, n int) error {
	return s.client.Set(ctx, s.key("badge"), n)
}

// --- Delivered history ---

func (s *DeviceStateStore) AddDelivered(ctx context.Context, record native.DeliveredNotification) error {
	return s.client.HSet(ctx, s.key("delivered"), record.Identifier, record)
}

// Delivered returns the history ordered by delivery time.
func (s *DeviceStateStore) Delivered(ctx context.Context) ([]native.DeliveredNotification, error) {
	raw, err := s.client.HGetAll(ctx, s.key("delivered"))
	if err != nil {
		return nil, fmt.Errorf("delivered history read failed: %w", err)
	}

	records := make([]native.DeliveredNotification, 0, len(raw))
	for _, entry := range raw {
		var record native.DeliveredNotification
		if err := json.Unmarshal([]byte(entry), &record); err != nil {
			// Corrupt rows are skipped rather than poisoning the whole read.
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

func (s *DeviceStateStore) RemoveDelivered(ctx context.Context, identifier string) error {
	return s.client.HDel(ctx, s.key("delivered"), identifier)
}

func (s *DeviceStateStore) ClearDelivered(ctx context.Context) error {
	return s.client.Del(ctx, s.key("delivered"))
}

// --- Missed signal queue ---

// DrainMissed reads and clears the queued signal envelopes in one step.
func (s *DeviceStateStore) DrainMissed(ctx context.Context) ([][]byte, error) {
	entries, err := s.client.Drain(ctx, s.key("missed"))
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(entries))
	for _, e := range entries {
		out = append(out, []byte(e))
	}
	return out, nil
}

func (s *DeviceStateStore) key(kind string) string {
	return fmt.Sprintf("notify:%s:%s", kind, s.deviceID)
}

// Package store implements the durable client store: a process-wide,
// string-keyed, string-valued key/value space that survives reloads.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// Store is the durable key/value contract. Every Set replaces the whole
// value atomically; readers never observe a partial write.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Queue accepts payloads for asynchronous archival.
type Queue interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
}

// GetJSON reads key and decodes it into dst. A missing key returns
// ErrNotFound; a malformed value returns a decode error.
func GetJSON(ctx context.Context, s Store, key string, dst interface{}) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key as a single write.
func SetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// Package kvutil provides helpers for NATS JetStream KeyValue buckets used as a document store.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// EnsureBucket creates the bucket described by cfg, or opens it when it already exists.
//
// Several processes commonly start against the same bucket at once; a create that loses the
// race reports ErrBucketExists and the bucket is opened instead. Transient failures are retried
// with jittered backoff until maxRetries attempts are used up or ctx is done.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - cfg: Bucket configuration
//   - maxRetries: Maximum attempts (3 if <= 0)
//
// Returns:
//   - jetstream.KeyValue: The bucket handle
//   - error: Last failure after all attempts, or the context error
//
// Example:
//
//	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "livequery-docs",
//	    History: 1,
//	}, 3)
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	cfg jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	backoff := NewBackoff(10*time.Millisecond, 2.0, 200*time.Millisecond, 0)
	var lastErr error

	for attempt := range maxRetries {
		kv, err := js.CreateKeyValue(ctx, cfg)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, openErr := js.KeyValue(ctx, cfg.Bucket)
			if openErr == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("open existing bucket: %w", openErr)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, ctx.Err())
		}

		if attempt < maxRetries-1 {
			if err := backoff.Wait(ctx); err != nil {
				return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
			}
		}
	}

	return nil, fmt.Errorf("ensure bucket %s after %d attempts: %w", cfg.Bucket, maxRetries, lastErr)
}

// ParseStorage maps a configuration string to a JetStream storage type.
//
// Accepted values are "file" (also the empty string) and "memory", case-insensitive.
func ParseStorage(s string) (jetstream.StorageType, error) {
	switch strings.ToLower(s) {
	case "", "file":
		return jetstream.FileStorage, nil
	case "memory":
		return jetstream.MemoryStorage, nil
	default:
		return jetstream.FileStorage, fmt.Errorf("unknown storage type %q", s)
	}
}

// IsConflict reports whether err is an optimistic-concurrency rejection from a KV
// Create or Update call.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return true
	}

	return strings.Contains(err.Error(), "wrong last sequence")
}

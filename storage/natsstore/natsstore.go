// Package natsstore persists flushed event batches in a NATS JetStream
// key/value bucket. Each batch is one KV entry keyed by session and first
// sequence number, so batches stay independently decodable and a batch
// write is all-or-nothing.
package natsstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/focusstream/errors"
	"github.com/c360/focusstream/event"
	"github.com/c360/focusstream/natsclient"
	"github.com/c360/focusstream/pkg/retry"
	"github.com/c360/focusstream/storage"
)

// DefaultBucket is the KV bucket events are stored in
const DefaultBucket = "focusstream_events"

// Store is a JetStream KV-backed EventStore
type Store struct {
	bucket jetstream.KeyValue
	retry  retry.Config
	logger *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRetry overrides the per-operation retry policy
func WithRetry(cfg retry.Config) Option {
	return func(s *Store) { s.retry = cfg }
}

// New creates the events bucket (or opens the existing one) on client
// and returns a Store over it.
func New(ctx context.Context, client *natsclient.Client, bucketName string, opts ...Option) (*Store, error) {
	if bucketName == "" {
		bucketName = DefaultBucket
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "focusstream flushed event batches",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "New", "create events bucket")
	}

	s := &Store{
		bucket: bucket,
		retry:  retry.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// batchKey builds the KV key for a batch: <session>.<first-sequence>,
// zero-padded so lexical ordering matches sequence ordering.
func batchKey(ev event.Event) string {
	return fmt.Sprintf("%s.%020d", ev.SessionID, ev.SequenceID)
}

// Store writes the batch as a single KV entry. Empty batches are a no-op.
func (s *Store) Store(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	data, err := json.Marshal(events)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "Store", "encode batch")
	}

	key := batchKey(events[0])

	err = retry.Do(ctx, s.retry, func() error {
		_, putErr := s.bucket.Put(ctx, key, data)
		return putErr
	})
	if err != nil {
		return errors.WrapTransient(err, "Store", "Store", "put batch "+key)
	}

	s.logger.Debug("batch persisted",
		"component", "natsstore",
		"key", key,
		"events", len(events))

	return nil
}

// Query lists batch entries, decodes them, and filters by criteria.
// Results are ordered by session then sequence.
func (s *Store) Query(ctx context.Context, criteria storage.Criteria) ([]event.Event, error) {
	lister, err := s.bucket.ListKeys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "Query", "list batch keys")
	}

	var keys []string
	prefix := ""
	if criteria.SessionID != "" {
		prefix = criteria.SessionID + "."
	}
	for key := range lister.Keys() {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []event.Event
	for _, key := range keys {
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, jetstream.ErrKeyNotFound) {
				continue // deleted between list and get
			}
			return nil, errors.WrapTransient(err, "Store", "Query", "get batch "+key)
		}

		var batch []event.Event
		if err := json.Unmarshal(entry.Value(), &batch); err != nil {
			return nil, errors.WrapInvalid(err, "Store", "Query", "decode batch "+key)
		}

		for _, ev := range batch {
			if !criteria.Matches(ev) {
				continue
			}
			out = append(out, ev)
			if criteria.Limit > 0 && len(out) == criteria.Limit {
				return out, nil
			}
		}
	}

	return out, nil
}

var _ storage.EventStore = (*Store)(nil)

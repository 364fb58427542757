package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Store keeps keyword index snapshots in a JetStream key-value bucket.
// Expiry is enforced at the bucket level; the per-call ttl is accepted to
// satisfy the cache contract but the bucket TTL is authoritative.
type Store struct {
	kv nats.KeyValue
}

func New(conn *nats.Conn, bucket string, ttl time.Duration) (*Store, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: bucket,
			TTL:    ttl,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("keyword cache bucket %q: %w", bucket, err)
	}
	return &Store{kv: kv}, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := s.kv.Put(key, value); err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return entry.Value(), true, nil
}

package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamStore keeps blobs in a NATS JetStream object store bucket.
// Selected with blob_backend=nats in the config.
type JetStreamStore struct {
	conn  *nats.Conn
	store jetstream.ObjectStore
}

var _ Store = (*JetStreamStore)(nil)

func NewJetStreamStore(ctx context.Context, natsURL, bucket string) (*JetStreamStore, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	store, err := js.ObjectStore(ctx, bucket)
	if err != nil {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "chat attachment storage",
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create object store bucket: %w", err)
		}
	}
	return &JetStreamStore{conn: conn, store: store}, nil
}

func (s *JetStreamStore) Put(ctx context.Context, id string, data []byte, contentType string) error {
	meta := jetstream.ObjectMeta{
		Name:    id,
		Headers: nats.Header{"Content-Type": []string{contentType}},
	}
	if _, err := s.store.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("put blob: %w", err)
	}
	return nil
}

func (s *JetStreamStore) Get(ctx context.Context, id string) ([]byte, string, error) {
	data, err := s.store.GetBytes(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("get blob: %w", err)
	}
	ct := "application/octet-stream"
	if info, err := s.store.GetInfo(ctx, id); err == nil && info.Headers != nil {
		if v := info.Headers.Get("Content-Type"); v != "" {
			ct = v
		}
	}
	return data, ct, nil
}

func (s *JetStreamStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *JetStreamStore) Close() {
	s.conn.Close()
}

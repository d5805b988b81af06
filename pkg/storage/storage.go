package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shiftregister-vg/deltapad/pkg/delta"
	"github.com/shiftregister-vg/deltapad/pkg/ot"
)

// ErrRevisionConflict is returned by AppendChange when the stored revision
// is not the one the change follows, usually because another server appended
// first.
var ErrRevisionConflict = errors.New("revision conflict")

// DocumentState is a persisted snapshot of a document
type DocumentState struct {
	Contents     *delta.Delta `json:"contents"`
	Revision     int64        `json:"revision"`
	LastModified int64        `json:"lastModified"`
}

// Storage persists document snapshots and change logs in Redis
type Storage struct {
	client       *redis.Client
	historyLimit int64
}

// Option configures a Storage.
type Option func(*Storage)

// WithHistoryLimit bounds the stored change log of each document.
func WithHistoryLimit(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.historyLimit = int64(n)
		}
	}
}

// New connects to the Redis server at redisURL
func New(ctx context.Context, redisURL string, opts ...Option) (*Storage, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing client. Close closes it.
func NewWithClient(client *redis.Client, opts ...Option) *Storage {
	s := &Storage{
		client:       client,
		historyLimit: ot.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func docKey(docID string) string {
	return fmt.Sprintf("doc:%s", docID)
}

func changesKey(docID string) string {
	return fmt.Sprintf("doc:%s:changes", docID)
}

func updatesChannel(docID string) string {
	return fmt.Sprintf("doc:%s:updates", docID)
}

func deletedChannel(docID string) string {
	return fmt.Sprintf("doc:%s:deleted", docID)
}

// SaveDocument stores a snapshot of the document
func (s *Storage) SaveDocument(ctx context.Context, docID string, state *DocumentState) error {
	state.LastModified = time.Now().UnixMilli()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal document state: %w", err)
	}
	if err := s.client.HSet(ctx, docKey(docID), "data", data).Err(); err != nil {
		return fmt.Errorf("failed to save document state: %w", err)
	}
	return nil
}

// LoadDocument loads the latest snapshot of the document. A document that was
// never saved is empty at revision 0.
func (s *Storage) LoadDocument(ctx context.Context, docID string) (*DocumentState, error) {
	data, err := s.client.HGet(ctx, docKey(docID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &DocumentState{Contents: delta.New()}, nil
		}
		return nil, fmt.Errorf("failed to load document state: %w", err)
	}

	var state DocumentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document state: %w", err)
	}
	if state.Contents == nil {
		state.Contents = delta.New()
	}
	return &state, nil
}

// AppendChange adds an applied change to the document's log and publishes
// it. c.Revision must directly follow the last stored revision.
func (s *Storage) AppendChange(ctx context.Context, docID string, c ot.Change) error {
	data, err := ot.SerializeChange(c)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	key := docKey(docID)
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "revision").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to get current revision: %w", err)
		}
		if current != c.Revision-1 {
			return fmt.Errorf("%w: stored %d, change %d", ErrRevisionConflict, current, c.Revision)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "revision", c.Revision)
			pipe.RPush(ctx, changesKey(docID), data)
			pipe.LTrim(ctx, changesKey(docID), -s.historyLimit, -1)
			pipe.Publish(ctx, updatesChannel(docID), data)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: revision %d", ErrRevisionConflict, c.Revision)
	}
	if err != nil && !errors.Is(err, ErrRevisionConflict) {
		return fmt.Errorf("failed to append change: %w", err)
	}
	return err
}

// Revision returns the revision of the last appended change.
func (s *Storage) Revision(ctx context.Context, docID string) (int64, error) {
	revision, err := s.client.HGet(ctx, docKey(docID), "revision").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to get current revision: %w", err)
	}
	return revision, nil
}

// LoadChanges returns the logged changes after revision since, oldest first.
// It fails with ot.ErrRevisionTooOld when the log no longer reaches back that
// far.
func (s *Storage) LoadChanges(ctx context.Context, docID string, since int64) ([]ot.Change, error) {
	items, err := s.client.LRange(ctx, changesKey(docID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load changes: %w", err)
	}

	var changes []ot.Change
	for i, item := range items {
		c, err := ot.DeserializeChange([]byte(item))
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal change: %w", err)
		}
		if i == 0 && c.Revision > since+1 {
			return nil, fmt.Errorf("%w: log starts at %d, wanted %d", ot.ErrRevisionTooOld, c.Revision, since+1)
		}
		if c.Revision > since {
			changes = append(changes, c)
		}
	}
	return changes, nil
}

// DeleteDocument removes a document's snapshot and change log
func (s *Storage) DeleteDocument(ctx context.Context, docID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, docKey(docID), changesKey(docID))
	pipe.Publish(ctx, deletedChannel(docID), "")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// SubscribeToChanges calls handler for every change appended to the document
// until ctx is done.
func (s *Storage) SubscribeToChanges(ctx context.Context, docID string, handler func(ot.Change)) error {
	return s.subscribe(ctx, updatesChannel(docID), func(payload string) error {
		c, err := ot.DeserializeChange([]byte(payload))
		if err != nil {
			return fmt.Errorf("failed to unmarshal change: %w", err)
		}
		handler(c)
		return nil
	})
}

// SubscribeToDeletes calls handler whenever the document is deleted, by this
// or any other server, until ctx is done.
func (s *Storage) SubscribeToDeletes(ctx context.Context, docID string, handler func()) error {
	return s.subscribe(ctx, deletedChannel(docID), func(string) error {
		handler()
		return nil
	})
}

func (s *Storage) subscribe(ctx context.Context, channel string, handler func(payload string) error) error {
	pubsub := s.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := handler(msg.Payload); err != nil {
				return err
			}
		}
	}
}

// Ping checks that Redis is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

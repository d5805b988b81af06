package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/assert/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shiftregister-vg/deltapad/pkg/delta"
	"github.com/shiftregister-vg/deltapad/pkg/ot"
)

func newTestStorage(t *testing.T) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), WithHistoryLimit(3))
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func change(revision int64, text string) ot.Change {
	return ot.Change{ID: text, Revision: revision, Delta: delta.New().Insert(text, nil)}
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := New(ctx, "redis://"+mr.Addr()+"/0")
	assert.Equal(t, err, nil)
	assert.Equal(t, s.Close(), nil)

	_, err = New(ctx, "http://nope")
	assert.NotEqual(t, err, nil)
}

func TestLoadMissingDocument(t *testing.T) {
	s, _ := newTestStorage(t)
	state, err := s.LoadDocument(context.Background(), "missing")
	assert.Equal(t, err, nil)
	assert.Equal(t, state.Revision, int64(0))
	assert.Equal(t, len(state.Contents.Ops), 0)
}

func TestSaveAndLoadDocument(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	contents := delta.New().Insert("Hello", delta.AttributeMap{"bold": true}).Insert("\n", nil)
	err := s.SaveDocument(ctx, "doc", &DocumentState{Contents: contents, Revision: 7})
	assert.Equal(t, err, nil)

	state, err := s.LoadDocument(ctx, "doc")
	assert.Equal(t, err, nil)
	assert.Equal(t, state.Revision, int64(7))
	assert.NotEqual(t, state.LastModified, int64(0))
	if !state.Contents.Equal(contents) {
		t.Fatalf("got %v, want %v", state.Contents, contents)
	}
}

func TestAppendChange(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	assert.Equal(t, s.AppendChange(ctx, "doc", change(1, "a")), nil)
	assert.Equal(t, s.AppendChange(ctx, "doc", change(2, "b")), nil)

	err := s.AppendChange(ctx, "doc", change(2, "c"))
	assert.Equal(t, errors.Is(err, ErrRevisionConflict), true)
	err = s.AppendChange(ctx, "doc", change(4, "c"))
	assert.Equal(t, errors.Is(err, ErrRevisionConflict), true)

	revision, err := s.Revision(ctx, "doc")
	assert.Equal(t, err, nil)
	assert.Equal(t, revision, int64(2))

	changes, err := s.LoadChanges(ctx, "doc", 0)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(changes), 2)
	assert.Equal(t, changes[0].ID, "a")
	assert.Equal(t, changes[1].ID, "b")

	changes, err = s.LoadChanges(ctx, "doc", 1)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(changes), 1)
	assert.Equal(t, changes[0].Revision, int64(2))
	if !changes[0].Delta.Equal(delta.New().Insert("b", nil)) {
		t.Fatalf("got %v", changes[0].Delta)
	}
}

func TestChangeLogIsTrimmed(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	for i, text := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, s.AppendChange(ctx, "doc", change(int64(i+1), text)), nil)
	}

	_, err := s.LoadChanges(ctx, "doc", 0)
	assert.Equal(t, errors.Is(err, ot.ErrRevisionTooOld), true)

	changes, err := s.LoadChanges(ctx, "doc", 2)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(changes), 3)
	assert.Equal(t, changes[0].ID, "c")
}

func TestDeleteDocument(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()

	assert.Equal(t, s.SaveDocument(ctx, "doc", &DocumentState{Contents: delta.New().Insert("x", nil), Revision: 1}), nil)
	assert.Equal(t, s.AppendChange(ctx, "doc", change(1, "x")), nil)

	assert.Equal(t, s.DeleteDocument(ctx, "doc"), nil)
	assert.Equal(t, mr.Exists(docKey("doc")), false)
	assert.Equal(t, mr.Exists(changesKey("doc")), false)

	state, err := s.LoadDocument(ctx, "doc")
	assert.Equal(t, err, nil)
	assert.Equal(t, state.Revision, int64(0))
}

func TestSubscribeToChanges(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ot.Change, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.SubscribeToChanges(ctx, "doc", func(c ot.Change) {
			received <- c
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumSub(updatesChannel("doc"))[updatesChannel("doc")] == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not established")
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, s.AppendChange(context.Background(), "doc", change(1, "hi")), nil)

	select {
	case c := <-received:
		assert.Equal(t, c.ID, "hi")
		assert.Equal(t, c.Revision, int64(1))
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, err, nil)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestSubscribeToDeletes(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deleted := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.SubscribeToDeletes(ctx, "doc", func() {
			deleted <- struct{}{}
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumSub(deletedChannel("doc"))[deletedChannel("doc")] == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not established")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// other documents are not reported
	assert.Equal(t, s.DeleteDocument(context.Background(), "other"), nil)
	assert.Equal(t, s.DeleteDocument(context.Background(), "doc"), nil)

	select {
	case <-deleted:
	case <-time.After(2 * time.Second):
		t.Fatal("delete not delivered")
	}
	select {
	case <-deleted:
		t.Fatal("delete delivered twice")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, err, nil)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

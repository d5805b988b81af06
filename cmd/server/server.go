package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shiftregister-vg/deltapad/pkg/config"
	"github.com/shiftregister-vg/deltapad/pkg/logger"
	"github.com/shiftregister-vg/deltapad/pkg/ot"
	"github.com/shiftregister-vg/deltapad/pkg/storage"
)

// Server owns the open documents. store is nil when running without Redis,
// in which case documents live only as long as the process.
type Server struct {
	cfg   *config.Config
	store *storage.Storage

	ctx     context.Context
	cancel  context.CancelFunc
	workers errgroup.Group

	mu   sync.Mutex
	hubs map[string]*Hub
}

func NewServer(cfg *config.Config, store *storage.Storage) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
		hubs:   make(map[string]*Hub),
	}
}

// Hub returns the hub of a document, loading the document on first use.
func (s *Server) Hub(ctx context.Context, docID string) (*Hub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.hubs[docID]; ok {
		return h, nil
	}
	if s.ctx.Err() != nil {
		return nil, errHubClosed
	}

	doc, err := loadDocument(ctx, s.store, docID, s.cfg.Document.HistoryLimit)
	if err != nil {
		return nil, err
	}
	h := newHub(s.ctx, docID, doc, s.store, s.cfg.Document.HistoryLimit, s.cfg.Document.SnapshotEvery)
	s.hubs[docID] = h

	s.workers.Go(func() error {
		h.run()
		return nil
	})
	if s.store != nil {
		s.workers.Go(func() error {
			if err := s.store.SubscribeToChanges(h.ctx, docID, h.receive); err != nil {
				h.log.Error("change subscription ended", "error", err)
			}
			return nil
		})
		s.workers.Go(func() error {
			err := s.store.SubscribeToDeletes(h.ctx, docID, func() {
				h.log.Info("document deleted")
				s.evict(docID, h)
			})
			if err != nil {
				h.log.Error("delete subscription ended", "error", err)
			}
			return nil
		})
	}
	h.log.Info("document opened", "revision", doc.Revision())
	return h, nil
}

// loadDocument restores a document from its latest snapshot and the changes
// logged after it.
func loadDocument(ctx context.Context, store *storage.Storage, docID string, historyLimit int) (*ot.Document, error) {
	if store == nil {
		return ot.NewDocument(nil, 0, ot.WithHistoryLimit(historyLimit)), nil
	}

	state, err := store.LoadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	doc := ot.NewDocument(state.Contents, state.Revision, ot.WithHistoryLimit(historyLimit))

	changes, err := store.LoadChanges(ctx, docID, state.Revision)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		if err := doc.ApplyRemote(c); err != nil {
			return nil, fmt.Errorf("failed to replay change %d: %w", c.Revision, err)
		}
	}
	return doc, nil
}

// DeleteDocument closes a document's hub, disconnecting its clients, and
// removes it from the store. Other servers sharing the store evict their hubs
// when the deletion is published.
func (s *Server) DeleteDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	h := s.hubs[docID]
	s.mu.Unlock()

	if h != nil {
		s.evict(docID, h)
	}
	if s.store != nil {
		return s.store.DeleteDocument(ctx, docID)
	}
	return nil
}

// evict closes h and forgets it, unless the document has been reopened with
// a newer hub in the meantime.
func (s *Server) evict(docID string, h *Hub) {
	s.mu.Lock()
	if s.hubs[docID] == h {
		delete(s.hubs, docID)
	}
	s.mu.Unlock()
	h.cancel()
}

// Close stops every hub and waits for them to finish.
func (s *Server) Close() error {
	s.cancel()
	return s.workers.Wait()
}

func (s *Server) handleWebSocket(c *gin.Context) {
	docID := c.Query("doc")
	if docID == "" {
		docID = "default"
	}
	h, err := s.Hub(c.Request.Context(), docID)
	if err != nil {
		logger.Error("failed to open document", "doc", docID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open document"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "doc", docID, "error", err)
		return
	}

	id := ulid.Make().String()
	client := &Client{
		id:      id,
		conn:    conn,
		hub:     h,
		send:    make(chan []byte, s.cfg.Client.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.Client.RateLimit), s.cfg.Client.RateBurst),
		log:     logger.With("doc", docID, "client", id),
	}
	if !h.join(client) {
		conn.Close()
		return
	}
	client.log.Info("client connected")

	go client.writePump()
	go client.readPump()
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/shiftregister-vg/deltapad/pkg/delta"
	"github.com/shiftregister-vg/deltapad/pkg/logger"
	"github.com/shiftregister-vg/deltapad/pkg/ot"
	"github.com/shiftregister-vg/deltapad/pkg/storage"
)

// Message types of the websocket protocol.
const (
	TypeInit   = "init"
	TypeSubmit = "submit"
	TypeAck    = "ack"
	TypeChange = "change"
	TypeUndo   = "undo"
	TypeCursor = "cursor"
	TypeError  = "error"
)

// maxSubmitAttempts bounds how often a submission is rebased after losing a
// race for the stored revision to another server.
const maxSubmitAttempts = 5

var errHubClosed = errors.New("document closed")

// Message is a websocket frame in either direction.
type Message struct {
	Type     string       `json:"type"`
	ID       string       `json:"id,omitempty"`
	ClientID string       `json:"clientId,omitempty"`
	Revision int64        `json:"revision"`
	Delta    *delta.Delta `json:"delta,omitempty"`
	Contents *delta.Delta `json:"contents,omitempty"`
	Change   *ot.Change   `json:"change,omitempty"`
	Cursor   *Cursor      `json:"cursor,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// Cursor is a selection in a client's copy of the document.
type Cursor struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// BroadcastMessage is delivered to every client except Sender, or only to
// Target when set.
type BroadcastMessage struct {
	Sender  *Client
	Target  *Client
	Message []byte
}

type request struct {
	client *Client // nil when submitted over REST
	id     string
	change ot.Change
	undo   string
	reply  chan result
}

type result struct {
	change ot.Change
	err    error
}

// Hub serializes every change to one document and fans the results out to
// the connected clients.
type Hub struct {
	id    string
	doc   atomic.Pointer[ot.Document]
	store *storage.Storage
	log   *slog.Logger

	historyLimit  int
	snapshotEvery int64
	lastSnapshot  int64

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
	requests   chan request
	remote     chan ot.Change

	ctx    context.Context
	cancel context.CancelFunc
}

func newHub(parent context.Context, id string, doc *ot.Document, store *storage.Storage, historyLimit, snapshotEvery int) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		id:            id,
		store:         store,
		log:           logger.With("doc", id),
		historyLimit:  historyLimit,
		snapshotEvery: int64(snapshotEvery),
		lastSnapshot:  doc.Revision(),
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan BroadcastMessage, 64),
		requests:      make(chan request, 64),
		remote:        make(chan ot.Change, 64),
		ctx:           ctx,
		cancel:        cancel,
	}
	h.doc.Store(doc)
	return h
}

// document returns the current revision log. It is only replaced when the
// hub falls too far behind the store.
func (h *Hub) document() *ot.Document {
	return h.doc.Load()
}

func (h *Hub) run() {
	defer func() {
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.log.Info("document closed")
	}()

	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			contents, revision := h.document().Snapshot()
			h.deliver(client, Message{Type: TypeInit, ClientID: client.id, Revision: revision, Contents: contents})
			h.log.Info("client registered", "client", client.id, "clients", len(h.clients))
		case client := <-h.unregister:
			if h.clients[client] {
				delete(h.clients, client)
				close(client.send)
			}
			h.log.Info("client unregistered", "client", client.id, "clients", len(h.clients))
		case bmsg := <-h.broadcast:
			if bmsg.Target != nil {
				if h.clients[bmsg.Target] {
					h.send(bmsg.Target, bmsg.Message)
				}
				continue
			}
			for client := range h.clients {
				if client != bmsg.Sender {
					h.send(client, bmsg.Message)
				}
			}
		case req := <-h.requests:
			c, err := h.process(req)
			h.respond(req, c, err)
		case c := <-h.remote:
			if err := h.applyRemote(c); err != nil {
				h.log.Error("failed to apply remote change", "revision", c.Revision, "error", err)
			}
		}
	}
}

// send queues data for a registered client, dropping the client when its
// buffer is full.
func (h *Hub) send(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.log.Warn("client buffer full, removing client", "client", client.id)
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) deliver(client *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", "type", msg.Type, "error", err)
		return
	}
	h.send(client, data)
}

// publish sends msg to every client except sender.
func (h *Hub) publish(sender *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", "type", msg.Type, "error", err)
		return
	}
	for client := range h.clients {
		if client != sender {
			h.send(client, data)
		}
	}
}

// process applies a submission or undo. With a store, the change is appended
// there first; losing the race for the next revision means catching up with
// the winner and rebasing again.
func (h *Hub) process(req request) (ot.Change, error) {
	for attempt := 1; ; attempt++ {
		doc := h.document()

		var prepared ot.Change
		var err error
		if req.undo != "" {
			prepared, err = doc.PrepareUndo(req.undo)
		} else {
			prepared, err = doc.Prepare(req.change)
		}
		if err != nil {
			return ot.Change{}, err
		}

		if h.store != nil {
			err := h.store.AppendChange(h.ctx, h.id, prepared)
			if errors.Is(err, storage.ErrRevisionConflict) && attempt < maxSubmitAttempts {
				h.log.Debug("revision conflict, catching up", "revision", prepared.Revision, "attempt", attempt)
				if err := h.catchUp(); err != nil {
					return ot.Change{}, err
				}
				continue
			}
			if err != nil {
				return ot.Change{}, err
			}
		}

		if err := doc.Commit(prepared); err != nil {
			return ot.Change{}, err
		}
		// the author of an undo has no copy of the change yet
		sender := req.client
		if req.undo != "" {
			sender = nil
		}
		h.publish(sender, Message{Type: TypeChange, Change: &prepared})
		h.snapshot()
		return prepared, nil
	}
}

func (h *Hub) respond(req request, c ot.Change, err error) {
	if req.reply != nil {
		req.reply <- result{change: c, err: err}
		return
	}
	if !h.clients[req.client] {
		return
	}
	if err != nil {
		h.log.Warn("change rejected", "client", req.client.id, "error", err)
		h.deliver(req.client, Message{Type: TypeError, ID: req.id, Message: err.Error()})
		return
	}
	if req.undo == "" {
		h.deliver(req.client, Message{Type: TypeAck, ID: c.ID, Revision: c.Revision})
	}
}

// applyRemote applies a change published by the store. Changes this hub
// appended itself arrive too and are already known.
func (h *Hub) applyRemote(c ot.Change) error {
	doc := h.document()
	switch revision := doc.Revision(); {
	case c.Revision <= revision:
		return nil
	case c.Revision == revision+1:
		if err := doc.ApplyRemote(c); err != nil {
			return err
		}
		h.publish(nil, Message{Type: TypeChange, Change: &c})
		return nil
	default:
		return h.catchUp()
	}
}

// catchUp applies the stored changes this hub has not seen.
func (h *Hub) catchUp() error {
	doc := h.document()
	stored, err := h.store.Revision(h.ctx, h.id)
	if err != nil {
		return err
	}
	// the stored document was deleted or replaced behind this hub
	if stored < doc.Revision() {
		return h.reload()
	}
	changes, err := h.store.LoadChanges(h.ctx, h.id, doc.Revision())
	if errors.Is(err, ot.ErrRevisionTooOld) {
		return h.reload()
	}
	if err != nil {
		return err
	}
	for _, c := range changes {
		if err := doc.ApplyRemote(c); err != nil {
			return err
		}
		h.publish(nil, Message{Type: TypeChange, Change: &c})
	}
	return nil
}

// reload replaces the document with the stored one and sends every client a
// fresh init.
func (h *Hub) reload() error {
	doc, err := loadDocument(h.ctx, h.store, h.id, h.historyLimit)
	if err != nil {
		return err
	}
	h.doc.Store(doc)
	h.lastSnapshot = doc.Revision()
	h.log.Warn("document reloaded from store", "revision", doc.Revision())

	contents, revision := doc.Snapshot()
	for client := range h.clients {
		h.deliver(client, Message{Type: TypeInit, ClientID: client.id, Revision: revision, Contents: contents})
	}
	return nil
}

func (h *Hub) snapshot() {
	if h.store == nil || h.snapshotEvery <= 0 {
		return
	}
	contents, revision := h.document().Snapshot()
	if revision-h.lastSnapshot < h.snapshotEvery {
		return
	}
	state := &storage.DocumentState{Contents: contents, Revision: revision}
	if err := h.store.SaveDocument(h.ctx, h.id, state); err != nil {
		h.log.Error("failed to save snapshot", "revision", revision, "error", err)
		return
	}
	h.lastSnapshot = revision
	h.log.Debug("snapshot saved", "revision", revision)
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) post(bmsg BroadcastMessage) {
	select {
	case h.broadcast <- bmsg:
	case <-h.ctx.Done():
	}
}

func (h *Hub) enqueue(req request) bool {
	select {
	case h.requests <- req:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// receive hands a change from the store's subscription to the hub.
func (h *Hub) receive(c ot.Change) {
	select {
	case h.remote <- c:
	case <-h.ctx.Done():
	}
}

// Submit applies a change on behalf of a caller without a websocket, such as
// the REST API, and waits for the result.
func (h *Hub) Submit(ctx context.Context, c ot.Change) (ot.Change, error) {
	return h.call(ctx, request{id: c.ID, change: c})
}

// Undo reverts the change with the given ID.
func (h *Hub) Undo(ctx context.Context, changeID string) (ot.Change, error) {
	return h.call(ctx, request{id: changeID, undo: changeID})
}

func (h *Hub) call(ctx context.Context, req request) (ot.Change, error) {
	req.reply = make(chan result, 1)
	select {
	case h.requests <- req:
	case <-ctx.Done():
		return ot.Change{}, ctx.Err()
	case <-h.ctx.Done():
		return ot.Change{}, errHubClosed
	}
	select {
	case res := <-req.reply:
		return res.change, res.err
	case <-ctx.Done():
		return ot.Change{}, ctx.Err()
	case <-h.ctx.Done():
		return ot.Change{}, errHubClosed
	}
}

package ot

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/shiftregister-vg/deltapad/pkg/delta"
)

// DefaultHistoryLimit is how many changes a Document keeps for rebasing late
// submissions.
const DefaultHistoryLimit = 1000

var (
	ErrInvalidRevision = errors.New("invalid revision")
	ErrRevisionTooOld  = errors.New("revision older than history")
	ErrLengthMismatch  = errors.New("change does not fit document")
	ErrDuplicateChange = errors.New("duplicate change")
	ErrUnknownChange   = errors.New("unknown change")
)

// Change is one revision of a document.
//
// When submitted, Revision is the revision the author's copy was at. Once
// applied, Revision is the revision the change produced and Delta has been
// rebased onto the revision before it.
type Change struct {
	ID       string       `json:"id,omitempty"`
	ClientID string       `json:"clientId,omitempty"`
	Revision int64        `json:"revision"`
	Delta    *delta.Delta `json:"delta"`
	Inverse  *delta.Delta `json:"inverse,omitempty"`
}

// Document holds the contents of a document together with the recent changes
// that produced it.
type Document struct {
	mu           sync.RWMutex
	contents     *delta.Delta
	revision     int64
	history      []Change
	ids          map[string]int64
	historyLimit int
}

// Option configures a Document.
type Option func(*Document)

// WithHistoryLimit bounds the number of changes kept. Submissions based on a
// revision older than the kept history fail with ErrRevisionTooOld.
func WithHistoryLimit(n int) Option {
	return func(d *Document) {
		if n > 0 {
			d.historyLimit = n
		}
	}
}

// NewDocument creates a document with the given contents at revision. A nil
// contents is an empty document.
func NewDocument(contents *delta.Delta, revision int64, opts ...Option) *Document {
	if contents == nil {
		contents = delta.New()
	}
	d := &Document{
		contents:     contents.Clone(),
		revision:     revision,
		ids:          make(map[string]int64),
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Revision returns the current revision.
func (d *Document) Revision() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// Snapshot returns a copy of the contents and the revision they are at.
func (d *Document) Snapshot() (*delta.Delta, int64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.contents.Clone(), d.revision
}

// Apply rebases c onto the current revision and applies it. Changes already
// in the history since c.Revision win ties on concurrent inserts.
func (d *Document) Apply(c Change) (Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prepared, err := d.prepare(c)
	if err != nil {
		return Change{}, err
	}
	d.commit(prepared)
	return prepared, nil
}

// Prepare returns c as Apply would apply it, without applying it. The result
// stays valid until the document changes; Commit applies it.
func (d *Document) Prepare(c Change) (Change, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.prepare(c)
}

func (d *Document) prepare(c Change) (Change, error) {
	if c.Revision < 0 || c.Revision > d.revision {
		return Change{}, fmt.Errorf("%w: %d, document is at %d", ErrInvalidRevision, c.Revision, d.revision)
	}
	missed := d.revision - c.Revision
	if missed > int64(len(d.history)) {
		return Change{}, fmt.Errorf("%w: %d", ErrRevisionTooOld, c.Revision)
	}
	if _, ok := d.ids[c.ID]; ok && c.ID != "" {
		return Change{}, fmt.Errorf("%w: %s", ErrDuplicateChange, c.ID)
	}

	rebased := c.Delta
	if rebased == nil {
		rebased = delta.New()
	}
	for _, h := range d.history[int64(len(d.history))-missed:] {
		rebased = h.Delta.Transform(rebased, true)
	}
	if err := d.fits(rebased); err != nil {
		return Change{}, err
	}

	c.Delta = rebased
	c.Inverse = rebased.Invert(d.contents)
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	c.Revision = d.revision + 1
	return c, nil
}

// ApplyRemote appends a change that was already rebased elsewhere, such as
// by another server sharing the same store, or by Prepare. c.Revision must
// directly follow the current revision.
func (d *Document) ApplyRemote(c Change) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.Revision != d.revision+1 {
		return fmt.Errorf("%w: remote %d, document is at %d", ErrInvalidRevision, c.Revision, d.revision)
	}
	if _, ok := d.ids[c.ID]; ok && c.ID != "" {
		return fmt.Errorf("%w: %s", ErrDuplicateChange, c.ID)
	}
	if c.Delta == nil {
		c.Delta = delta.New()
	}
	if err := d.fits(c.Delta); err != nil {
		return err
	}
	d.commit(c)
	return nil
}

// Commit applies a change returned by Prepare or PrepareUndo.
func (d *Document) Commit(c Change) error {
	return d.ApplyRemote(c)
}

func (d *Document) fits(change *delta.Delta) error {
	if base := change.BaseLength(); base > d.contents.Length() {
		return fmt.Errorf("%w: change spans %d, document has %d", ErrLengthMismatch, base, d.contents.Length())
	}
	return nil
}

// commit applies c.Delta to the contents and records c. The caller holds the
// write lock and has checked c.
func (d *Document) commit(c Change) {
	c.Inverse = c.Delta.Invert(d.contents)
	d.contents = d.contents.Compose(c.Delta)
	d.revision = c.Revision

	d.history = append(d.history, c)
	if c.ID != "" {
		d.ids[c.ID] = c.Revision
	}
	if over := len(d.history) - d.historyLimit; over > 0 {
		for _, old := range d.history[:over] {
			delete(d.ids, old.ID)
		}
		d.history = append([]Change(nil), d.history[over:]...)
	}
}

// Undo applies the inverse of the change with the given ID, rebased over
// everything that happened after it.
func (d *Document) Undo(changeID string) (Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prepared, err := d.prepareUndo(changeID)
	if err != nil {
		return Change{}, err
	}
	d.commit(prepared)
	return prepared, nil
}

// PrepareUndo is Prepare for the change Undo would apply.
func (d *Document) PrepareUndo(changeID string) (Change, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.prepareUndo(changeID)
}

func (d *Document) prepareUndo(changeID string) (Change, error) {
	revision, ok := d.ids[changeID]
	if !ok {
		return Change{}, fmt.Errorf("%w: %s", ErrUnknownChange, changeID)
	}
	index := len(d.history) - int(d.revision-revision) - 1
	target := d.history[index]

	inverse := target.Inverse
	for _, later := range d.history[index+1:] {
		inverse = later.Delta.Transform(inverse, true)
	}
	return d.prepare(Change{ClientID: target.ClientID, Revision: d.revision, Delta: inverse})
}

// Since returns the changes after revision, oldest first.
func (d *Document) Since(revision int64) ([]Change, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if revision < 0 || revision > d.revision {
		return nil, fmt.Errorf("%w: %d, document is at %d", ErrInvalidRevision, revision, d.revision)
	}
	missed := d.revision - revision
	if missed > int64(len(d.history)) {
		return nil, fmt.Errorf("%w: %d", ErrRevisionTooOld, revision)
	}
	out := make([]Change, missed)
	copy(out, d.history[int64(len(d.history))-missed:])
	return out, nil
}

// SerializeChange converts a change to JSON
func SerializeChange(c Change) ([]byte, error) {
	return json.Marshal(c)
}

// DeserializeChange converts JSON to a change
func DeserializeChange(data []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return Change{}, err
	}
	if c.Delta == nil {
		c.Delta = delta.New()
	}
	return c, nil
}

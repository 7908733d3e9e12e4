// Package reconcile merges the two uncoordinated operation feeds — pulled
// snapshots and pushed deltas — into a single de-duplicated, update-aware
// collection for rendering.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/goteamwork/roomsync/internal/logging"
	"github.com/goteamwork/roomsync/internal/model"
)

// OperationFetcher is the pull side of the feed (snapshot or since-cursor
// fetch). Satisfied by the transport backend.
type OperationFetcher interface {
	FetchOperations(ctx context.Context, roomID, sinceID, sinceHash string) ([]model.Operation, error)
}

// Filter selects operations at read time. Filters never affect merging: an
// item whose type changes between operations must still merge correctly, so
// exclusion happens only on the way out.
type Filter func(op *model.Operation) bool

// Chat selects chat-feed operations.
func Chat(op *model.Operation) bool {
	return op.Item != nil && op.Item.Type == model.ItemChat
}

// Clipboard selects shared-clipboard operations.
func Clipboard(op *model.Operation) bool {
	return op.Item != nil && op.Item.Type == model.ItemClipboard
}

// Reconciler keeps the merged view of a room's feed. Merge correctness is
// identity-based, never timestamp-based: the matching key for an incoming
// operation is its ID if already known, else its ItemID if any entry shares
// it, else the operation is new and appends. A match replaces the entry
// wholesale at its original position, which is what turns a compressing-file
// placeholder into its ready successor without moving it on screen.
type Reconciler struct {
	mu          sync.Mutex
	fetcher     OperationFetcher
	logger      logging.Logger
	ops         []model.Operation
	byID        map[string]int
	byItemID    map[string]int
	provisional map[string]struct{} // op IDs awaiting an authoritative echo
	cursor      string              // last authoritative op ID, for since fetches
	cursorHash  string              // its chain hash, lets the host detect divergence
}

// New creates an empty reconciler over the given pull transport.
func New(fetcher OperationFetcher, logger logging.Logger) *Reconciler {
	return &Reconciler{
		fetcher:     fetcher,
		logger:      logger,
		byID:        make(map[string]int),
		byItemID:    make(map[string]int),
		provisional: make(map[string]struct{}),
	}
}

// LoadSnapshot pulls operations since the last authoritative cursor and
// merges them. Deltas that already arrived via push de-duplicate by identity,
// so pulling after a push never doubles entries.
func (r *Reconciler) LoadSnapshot(ctx context.Context, roomID string) error {
	r.mu.Lock()
	since, sinceHash := r.cursor, r.cursorHash
	r.mu.Unlock()

	ops, err := r.fetcher.FetchOperations(ctx, roomID, since, sinceHash)
	if err != nil {
		return fmt.Errorf("fetch operations: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range ops {
		r.merge(ctx, &ops[i], true)
	}
	return nil
}

// ApplyDelta merges one pushed operation.
func (r *Reconciler) ApplyDelta(op model.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merge(context.Background(), &op, true)
}

// AppendProvisional records a locally-synthesized, not-yet-confirmed
// operation (e.g. a chat message the user just sent). The authoritative
// stream replaces it in place once the echo arrives.
func (r *Reconciler) AppendProvisional(op model.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provisional[op.ID] = struct{}{}
	r.merge(context.Background(), &op, false)
}

// merge implements the matching-key algorithm. Callers hold r.mu.
func (r *Reconciler) merge(ctx context.Context, op *model.Operation, authoritative bool) {
	if authoritative {
		r.cursor = op.ID
		r.cursorHash = op.Hash
	}

	pos, matched := r.match(op, authoritative)
	if !matched {
		if !op.Valid() && r.logger != nil {
			// Keeps its slot anyway so a later correction can land on it.
			r.logger.Warn(ctx, "operation with malformed payload retained as placeholder",
				"opId", op.ID, "itemId", op.ItemID)
		}
		r.ops = append(r.ops, *op)
		pos = len(r.ops) - 1
		r.index(op, pos)
		return
	}

	if !op.Valid() {
		if r.logger != nil {
			r.logger.Warn(ctx, "ignoring malformed update for existing entry",
				"opId", op.ID, "itemId", op.ItemID)
		}
		return
	}

	old := r.ops[pos]
	delete(r.byID, old.ID)
	delete(r.provisional, old.ID)
	if old.ItemID != "" && old.ItemID != op.ItemID {
		delete(r.byItemID, old.ItemID)
	}
	r.ops[pos] = *op
	r.index(op, pos)
}

// match finds the position an incoming operation replaces, if any. Identity
// wins over item identity; provisional content matching applies only to
// authoritative chat echoes.
func (r *Reconciler) match(op *model.Operation, authoritative bool) (int, bool) {
	if pos, ok := r.byID[op.ID]; ok {
		return pos, true
	}
	if op.ItemID != "" {
		if pos, ok := r.byItemID[op.ItemID]; ok {
			return pos, true
		}
	}
	if authoritative {
		if pos, ok := r.matchProvisional(op); ok {
			return pos, true
		}
	}
	return 0, false
}

// matchProvisional pairs an authoritative chat operation with the earliest
// provisional entry carrying the same author and text.
func (r *Reconciler) matchProvisional(op *model.Operation) (int, bool) {
	msg := op.Item.Chat()
	if msg == nil {
		return 0, false
	}
	for pos, existing := range r.ops {
		if _, ok := r.provisional[existing.ID]; !ok {
			continue
		}
		prev := existing.Item.Chat()
		if prev == nil {
			continue
		}
		if prev.UserID == msg.UserID && prev.Message == msg.Message {
			return pos, true
		}
	}
	return 0, false
}

func (r *Reconciler) index(op *model.Operation, pos int) {
	r.byID[op.ID] = pos
	if op.ItemID != "" {
		r.byItemID[op.ItemID] = pos
	}
}

// View returns the merged operations in arrival order, skipping entries with
// unusable payloads and, when filter is non-nil, entries it rejects.
func (r *Reconciler) View(filter Filter) []model.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Operation, 0, len(r.ops))
	for i := range r.ops {
		op := &r.ops[i]
		if !op.Valid() {
			continue
		}
		if filter != nil && !filter(op) {
			continue
		}
		out = append(out, *op)
	}
	return out
}

// Cursor reports the last authoritative operation ID merged, used as the
// since-cursor for incremental fetches.
func (r *Reconciler) Cursor() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// CursorHash reports the chain hash of the cursor operation.
func (r *Reconciler) CursorHash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursorHash
}

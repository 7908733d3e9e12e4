package host

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goteamwork/roomsync/internal/model"
)

const (
	maxOperationsPerRoom   = 1000
	maxChatMessagesPerRoom = 100
)

// HistoryPool is the per-room operation log. Operations form a hash
// chain: each carries the id and hash of its predecessor so clients can
// request deltas and detect a diverged cursor.
type HistoryPool struct {
	mu         sync.RWMutex
	operations map[string][]*model.Operation
	counter    int64
}

func NewHistoryPool() *HistoryPool {
	return &HistoryPool{operations: make(map[string][]*model.Operation)}
}

// AddOperation appends an operation to a room's log, linking it to the
// previous head and trimming the log to the room cap.
func (hp *HistoryPool) AddOperation(roomID string, opType model.OperationType, itemID string, item *model.Item, userID, userName string) *model.Operation {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	hp.counter++
	var parentID, parentHash string
	if ops := hp.operations[roomID]; len(ops) > 0 {
		last := ops[len(ops)-1]
		parentID = last.ID
		parentHash = last.Hash
	}

	timestamp := time.Now().Unix()
	op := &model.Operation{
		ID:         fmt.Sprintf("op_%d", hp.counter),
		ParentID:   parentID,
		ParentHash: parentHash,
		Hash:       operationHash(parentHash, opType, itemID, item, userID, userName, timestamp),
		OpType:     opType,
		ItemID:     itemID,
		Item:       item,
		Timestamp:  timestamp,
		UserID:     userID,
		UserName:   userName,
	}

	hp.operations[roomID] = append(hp.operations[roomID], op)
	if ops := hp.operations[roomID]; len(ops) > maxOperationsPerRoom {
		hp.operations[roomID] = ops[len(ops)-maxOperationsPerRoom:]
	}
	return op
}

// Operations returns the log after the given cursor. A known sinceHash
// wins over sinceID. An unknown hash returns the full log so the caller
// resyncs; an unknown id returns nothing.
func (hp *HistoryPool) Operations(roomID, sinceID, sinceHash string) []*model.Operation {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	ops := hp.operations[roomID]
	if ops == nil {
		return []*model.Operation{}
	}

	start := 0
	if sinceHash != "" {
		start = -1
		for i, op := range ops {
			if op.Hash == sinceHash {
				start = i + 1
				break
			}
		}
		if start == -1 {
			// Hash fell off the trimmed log: hand back everything.
			start = 0
		}
	} else if sinceID != "" {
		start = -1
		for i, op := range ops {
			if op.ID == sinceID {
				start = i + 1
				break
			}
		}
		if start == -1 {
			return []*model.Operation{}
		}
	}

	if start >= len(ops) {
		return []*model.Operation{}
	}
	result := make([]*model.Operation, len(ops)-start)
	copy(result, ops[start:])
	return result
}

// ChatMessages replays the log into the room's current chat state,
// ordered by timestamp and capped to the most recent messages.
func (hp *HistoryPool) ChatMessages(roomID string) []*model.ChatMessage {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	current := make(map[string]*model.ChatMessage)
	for _, op := range hp.operations[roomID] {
		if op.Item == nil || op.Item.Type != model.ItemChat {
			continue
		}
		switch op.OpType {
		case model.OpAdd, model.OpUpdate:
			if msg := op.Item.Chat(); msg != nil {
				current[op.ItemID] = msg
			}
		case model.OpRemove:
			delete(current, op.ItemID)
		}
	}

	result := make([]*model.ChatMessage, 0, len(current))
	for _, msg := range current {
		result = append(result, msg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp < result[j].Timestamp })
	if len(result) > maxChatMessagesPerRoom {
		result = result[len(result)-maxChatMessagesPerRoom:]
	}
	return result
}

// FindOperation locates an operation by id across all rooms.
func (hp *HistoryPool) FindOperation(opID string) (*model.Operation, string) {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	for roomID, ops := range hp.operations {
		for _, op := range ops {
			if op.ID == opID {
				return op, roomID
			}
		}
	}
	return nil, ""
}

// ReplaceItem swaps the item payload of an existing operation in place.
// Used when file contents arrive after the announcing operation.
func (hp *HistoryPool) ReplaceItem(opID string, item *model.Item) bool {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	for _, ops := range hp.operations {
		for _, op := range ops {
			if op.ID == opID {
				op.Item = item
				return true
			}
		}
	}
	return false
}

// operationHash builds the chain hash over a deterministic fingerprint
// of the operation. Bulky payload bytes contribute only their lengths.
func operationHash(parentHash string, opType model.OperationType, itemID string, item *model.Item, userID, userName string, timestamp int64) string {
	payload := struct {
		ParentHash string              `json:"parentHash"`
		OpType     model.OperationType `json:"opType"`
		ItemID     string              `json:"itemId"`
		Item       any                 `json:"item"`
		UserID     string              `json:"userId"`
		UserName   string              `json:"userName"`
		Timestamp  int64               `json:"timestamp"`
	}{parentHash, opType, itemID, itemFingerprint(item), userID, userName, timestamp}

	data, err := json.Marshal(payload)
	if err != nil {
		h := sha256.Sum256([]byte(fmt.Sprintf("fallback-%d", timestamp)))
		return hex.EncodeToString(h[:])
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func itemFingerprint(item *model.Item) any {
	if item == nil {
		return nil
	}
	base := struct {
		ID   string         `json:"id"`
		Type model.ItemType `json:"type"`
	}{item.ID, item.Type}

	if msg := item.Chat(); msg != nil {
		return struct {
			Base      any    `json:"base"`
			Message   string `json:"message"`
			Timestamp int64  `json:"timestamp"`
		}{base, msg.Message, msg.Timestamp}
	}
	if clip := item.Clipboard(); clip != nil {
		return struct {
			Base       any    `json:"base"`
			Text       string `json:"text"`
			FileCount  int    `json:"fileCount"`
			ImageBytes int    `json:"imageBytes"`
		}{base, clip.Text, clip.FileCount, len(clip.Image)}
	}
	return base
}

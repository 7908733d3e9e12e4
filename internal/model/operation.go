package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OperationType is the kind of mutation an Operation records. The reconciler
// treats it as informational metadata; merge behavior is identity-based.
type OperationType string

const (
	OpAdd    OperationType = "add"
	OpUpdate OperationType = "update"
	OpRemove OperationType = "remove"
)

// ItemType discriminates the payload shape of an operation's item.
type ItemType string

const (
	ItemChat      ItemType = "chat"
	ItemClipboard ItemType = "clipboard"
)

// ErrMalformedItem reports an item whose payload could not be decoded.
var ErrMalformedItem = errors.New("malformed item payload")

// Item is the payload of an operation. Data holds *ChatMessage or
// *ClipboardItem depending on Type, decoded once at the transport boundary;
// it is nil when the wire payload was missing or unrecognized.
type Item struct {
	ID   string   `json:"id"`
	Type ItemType `json:"type"`
	Data any      `json:"data,omitempty"`
}

// Chat returns the chat payload, or nil if this is not a chat item.
func (it *Item) Chat() *ChatMessage {
	if it == nil {
		return nil
	}
	msg, _ := it.Data.(*ChatMessage)
	return msg
}

// Clipboard returns the clipboard payload, or nil if this is not one.
func (it *Item) Clipboard() *ClipboardItem {
	if it == nil {
		return nil
	}
	ci, _ := it.Data.(*ClipboardItem)
	return ci
}

// UnmarshalJSON decodes the polymorphic data field based on the item type.
// An unknown item type or an absent data field leaves Data nil rather than
// failing the whole envelope; the reconciler neutralizes such entries.
func (it *Item) UnmarshalJSON(b []byte) error {
	var shell struct {
		ID   string          `json:"id"`
		Type ItemType        `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &shell); err != nil {
		return fmt.Errorf("decode item: %w", err)
	}

	it.ID = shell.ID
	it.Type = shell.Type
	it.Data = nil

	if len(shell.Data) == 0 || string(shell.Data) == "null" {
		return nil
	}

	switch shell.Type {
	case ItemChat:
		msg := &ChatMessage{}
		if err := json.Unmarshal(shell.Data, msg); err != nil {
			return fmt.Errorf("%w: chat: %v", ErrMalformedItem, err)
		}
		it.Data = msg
	case ItemClipboard:
		ci := &ClipboardItem{}
		if err := json.Unmarshal(shell.Data, ci); err != nil {
			return fmt.Errorf("%w: clipboard: %v", ErrMalformedItem, err)
		}
		it.Data = ci
	}

	return nil
}

// Operation is one immutable record of a state change applied to a room's
// shared feed. "Update" is modeled as a new operation sharing an ItemID with
// an older one; records are never mutated in place.
type Operation struct {
	ID         string        `json:"id"`
	ParentID   string        `json:"parentId,omitempty"`
	ParentHash string        `json:"parentHash,omitempty"`
	Hash       string        `json:"hash,omitempty"`
	OpType     OperationType `json:"opType"`
	ItemID     string        `json:"itemId"`
	Item       *Item         `json:"item"`
	Timestamp  int64         `json:"timestamp"`
	UserID     string        `json:"userId,omitempty"`
	UserName   string        `json:"userName,omitempty"`
}

// Valid reports whether the operation carries a usable payload. Invalid
// operations still occupy a slot in the merged view so that a later
// correction sharing the identity can replace them.
func (op *Operation) Valid() bool {
	return op != nil && op.Item != nil && op.Item.Data != nil
}

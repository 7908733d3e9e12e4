package host

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goteamwork/roomsync/internal/model"
)

func chatItem(id, userID, text string, ts int64) *model.Item {
	return &model.Item{
		ID:   id,
		Type: model.ItemChat,
		Data: &model.ChatMessage{ID: id, UserID: userID, Message: text, Timestamp: ts},
	}
}

func TestAddOperationBuildsChain(t *testing.T) {
	hp := NewHistoryPool()

	first := hp.AddOperation("room_1", model.OpAdd, "msg_1", chatItem("msg_1", "user_1", "one", 1), "user_1", "Alice")
	second := hp.AddOperation("room_1", model.OpAdd, "msg_2", chatItem("msg_2", "user_1", "two", 2), "user_1", "Alice")

	assert.Empty(t, first.ParentID)
	assert.Empty(t, first.ParentHash)
	assert.NotEmpty(t, first.Hash)

	assert.Equal(t, first.ID, second.ParentID)
	assert.Equal(t, first.Hash, second.ParentHash)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestOperationIDsAreGlobal(t *testing.T) {
	hp := NewHistoryPool()
	a := hp.AddOperation("room_1", model.OpAdd, "m1", chatItem("m1", "u", "x", 1), "u", "U")
	b := hp.AddOperation("room_2", model.OpAdd, "m2", chatItem("m2", "u", "y", 2), "u", "U")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestOperationsSinceID(t *testing.T) {
	hp := NewHistoryPool()
	var ids []string
	for i := 0; i < 5; i++ {
		op := hp.AddOperation("room_1", model.OpAdd,
			fmt.Sprintf("msg_%d", i), chatItem(fmt.Sprintf("msg_%d", i), "u", "x", int64(i)), "u", "U")
		ids = append(ids, op.ID)
	}

	ops := hp.Operations("room_1", ids[2], "")
	require.Len(t, ops, 2)
	assert.Equal(t, ids[3], ops[0].ID)
	assert.Equal(t, ids[4], ops[1].ID)

	assert.Len(t, hp.Operations("room_1", "", ""), 5)
	assert.Empty(t, hp.Operations("room_1", ids[4], ""))
}

func TestOperationsUnknownIDReturnsNothing(t *testing.T) {
	hp := NewHistoryPool()
	hp.AddOperation("room_1", model.OpAdd, "m1", chatItem("m1", "u", "x", 1), "u", "U")
	assert.Empty(t, hp.Operations("room_1", "op_999", ""))
}

func TestOperationsSinceHashWinsOverID(t *testing.T) {
	hp := NewHistoryPool()
	a := hp.AddOperation("room_1", model.OpAdd, "m1", chatItem("m1", "u", "x", 1), "u", "U")
	b := hp.AddOperation("room_1", model.OpAdd, "m2", chatItem("m2", "u", "y", 2), "u", "U")

	ops := hp.Operations("room_1", b.ID, a.Hash)
	require.Len(t, ops, 1)
	assert.Equal(t, b.ID, ops[0].ID)
}

func TestOperationsUnknownHashTriggersFullResync(t *testing.T) {
	hp := NewHistoryPool()
	hp.AddOperation("room_1", model.OpAdd, "m1", chatItem("m1", "u", "x", 1), "u", "U")
	hp.AddOperation("room_1", model.OpAdd, "m2", chatItem("m2", "u", "y", 2), "u", "U")

	ops := hp.Operations("room_1", "", "no-such-hash")
	assert.Len(t, ops, 2)
}

func TestOperationsUnknownRoom(t *testing.T) {
	hp := NewHistoryPool()
	assert.Empty(t, hp.Operations("room_x", "", ""))
}

func TestOperationLogTrimmedToCap(t *testing.T) {
	hp := NewHistoryPool()
	for i := 0; i < maxOperationsPerRoom+10; i++ {
		id := fmt.Sprintf("msg_%d", i)
		hp.AddOperation("room_1", model.OpAdd, id, chatItem(id, "u", "x", int64(i)), "u", "U")
	}

	ops := hp.Operations("room_1", "", "")
	require.Len(t, ops, maxOperationsPerRoom)
	assert.Equal(t, "msg_10", ops[0].ItemID)
}

func TestChatMessagesReplay(t *testing.T) {
	hp := NewHistoryPool()
	hp.AddOperation("room_1", model.OpAdd, "m1", chatItem("m1", "u", "first", 1), "u", "U")
	hp.AddOperation("room_1", model.OpAdd, "m2", chatItem("m2", "u", "second", 2), "u", "U")
	hp.AddOperation("room_1", model.OpUpdate, "m1", chatItem("m1", "u", "first edited", 1), "u", "U")
	hp.AddOperation("room_1", model.OpRemove, "m2", chatItem("m2", "u", "", 2), "u", "U")

	msgs := hp.ChatMessages("room_1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "first edited", msgs[0].Message)
}

func TestChatMessagesSortedAndCapped(t *testing.T) {
	hp := NewHistoryPool()
	for i := maxChatMessagesPerRoom + 20; i > 0; i-- {
		id := fmt.Sprintf("m%d", i)
		hp.AddOperation("room_1", model.OpAdd, id, chatItem(id, "u", id, int64(i)), "u", "U")
	}

	msgs := hp.ChatMessages("room_1")
	require.Len(t, msgs, maxChatMessagesPerRoom)
	for i := 1; i < len(msgs); i++ {
		assert.LessOrEqual(t, msgs[i-1].Timestamp, msgs[i].Timestamp)
	}
	assert.EqualValues(t, 21, msgs[0].Timestamp)
}

func TestChatMessagesIgnoreClipboardOps(t *testing.T) {
	hp := NewHistoryPool()
	hp.AddOperation("room_1", model.OpAdd, "c1", &model.Item{
		ID: "c1", Type: model.ItemClipboard, Data: &model.ClipboardItem{Type: model.ClipboardText, Text: "t"},
	}, "u", "U")
	assert.Empty(t, hp.ChatMessages("room_1"))
}

func TestFindOperation(t *testing.T) {
	hp := NewHistoryPool()
	op := hp.AddOperation("room_7", model.OpAdd, "m1", chatItem("m1", "u", "x", 1), "u", "U")

	found, roomID := hp.FindOperation(op.ID)
	require.NotNil(t, found)
	assert.Equal(t, "room_7", roomID)

	missing, _ := hp.FindOperation("op_404")
	assert.Nil(t, missing)
}

func TestReplaceItem(t *testing.T) {
	hp := NewHistoryPool()
	op := hp.AddOperation("room_1", model.OpAdd, "m1", chatItem("m1", "u", "old", 1), "u", "U")

	require.True(t, hp.ReplaceItem(op.ID, chatItem("m1", "u", "new", 1)))
	found, _ := hp.FindOperation(op.ID)
	assert.Equal(t, "new", found.Item.Chat().Message)

	assert.False(t, hp.ReplaceItem("op_404", chatItem("m1", "u", "x", 1)))
}

func TestOperationHashDependsOnContent(t *testing.T) {
	h1 := operationHash("", model.OpAdd, "m1", chatItem("m1", "u", "x", 1), "u", "U", 100)
	h2 := operationHash("", model.OpAdd, "m1", chatItem("m1", "u", "y", 1), "u", "U", 100)
	h3 := operationHash("parent", model.OpAdd, "m1", chatItem("m1", "u", "x", 1), "u", "U", 100)

	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Equal(t, h1, operationHash("", model.OpAdd, "m1", chatItem("m1", "u", "x", 1), "u", "U", 100))
}

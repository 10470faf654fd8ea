package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
)

func TestAdvanceCursorMonotonicGuard(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewConversationSummaryRepo(gdb, testutil.Logger(t))

	convID := uuid.New()
	if _, err := repo.Create(dbc, &types.ConversationSummary{
		ConversationID: convID,
		Kind:           types.SummaryKindChat,
	}); err != nil {
		t.Fatalf("create summary row: %v", err)
	}

	handle := int64(42)
	msgB := uuid.New()
	ok, err := repo.AdvanceCursor(dbc, convID, types.SummaryKindChat, &handle, "first twenty", &msgB, 20)
	if err != nil {
		t.Fatalf("forward advance: %v", err)
	}
	if !ok {
		t.Fatal("forward advance rejected")
	}

	row, err := repo.GetByConversationAndKind(dbc, convID, types.SummaryKindChat)
	if err != nil || row == nil {
		t.Fatalf("load summary: row=%v err=%v", row, err)
	}
	if row.Summary != "first twenty" || row.LatestSeq != 20 {
		t.Fatalf("row after advance = %+v", row)
	}
	if row.LatestMessageID == nil || *row.LatestMessageID != msgB {
		t.Fatalf("cursor message id = %v, want %s", row.LatestMessageID, msgB)
	}
	if row.ExternalID == nil || *row.ExternalID != 42 {
		t.Fatalf("external id = %v, want 42", row.ExternalID)
	}

	// A stale poller reporting an older position must not move anything.
	msgA := uuid.New()
	ok, err = repo.AdvanceCursor(dbc, convID, types.SummaryKindChat, &handle, "stale", &msgA, 10)
	if err != nil {
		t.Fatalf("stale advance errored: %v", err)
	}
	if ok {
		t.Fatal("stale advance accepted; latest_seq must only move forward")
	}

	row, _ = repo.GetByConversationAndKind(dbc, convID, types.SummaryKindChat)
	if row.Summary != "first twenty" || row.LatestSeq != 20 {
		t.Fatalf("cursor regressed: %+v", row)
	}

	ok, err = repo.AdvanceCursor(dbc, convID, types.SummaryKindChat, &handle, "thirty five", &msgA, 35)
	if err != nil || !ok {
		t.Fatalf("second forward advance: ok=%v err=%v", ok, err)
	}
	row, _ = repo.GetByConversationAndKind(dbc, convID, types.SummaryKindChat)
	if row.LatestSeq != 35 {
		t.Fatalf("seq = %d, want 35", row.LatestSeq)
	}
}

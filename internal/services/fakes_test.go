package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/ideaforge-backend/internal/clients/metacognition"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

// -------------------- message repo --------------------

type fakeMessageRepo struct {
	mu   sync.Mutex
	rows []*types.ChatMessage
}

func (f *fakeMessageRepo) Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return rows, nil
}

func (f *fakeMessageRepo) GetMaxSeq(dbc dbctx.Context, conversationID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max int64
	for _, m := range f.rows {
		if m.ConversationID == conversationID && m.Seq > max {
			max = m.Seq
		}
	}
	return max, nil
}

func (f *fakeMessageRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.ChatMessage, error) {
	return f.ListForSummary(dbc, conversationID)
}

func (f *fakeMessageRepo) ListForSummary(dbc dbctx.Context, conversationID uuid.UUID) ([]*types.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.ChatMessage
	for _, m := range f.rows {
		if m.ConversationID == conversationID && types.SummarizableRole(m.Role) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (f *fakeMessageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.rows {
		if m.ID != id {
			continue
		}
		if v, ok := updates["content"].(string); ok {
			m.Content = v
		}
		if v, ok := updates["status"].(string); ok {
			m.Status = v
		}
		return nil
	}
	return fmt.Errorf("message %s not found", id)
}

func (f *fakeMessageRepo) SoftDeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, m := range f.rows {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
		}
	}
	f.rows = kept
	return nil
}

// -------------------- summary repo --------------------

type fakeSummaryRepo struct {
	mu   sync.Mutex
	rows map[string]*types.ConversationSummary
}

func newFakeSummaryRepo() *fakeSummaryRepo {
	return &fakeSummaryRepo{rows: make(map[string]*types.ConversationSummary)}
}

func summaryKey(conversationID uuid.UUID, kind string) string {
	return conversationID.String() + "/" + kind
}

func (f *fakeSummaryRepo) GetByConversationAndKind(dbc dbctx.Context, conversationID uuid.UUID, kind string) (*types.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[summaryKey(conversationID, kind)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeSummaryRepo) Create(dbc dbctx.Context, row *types.ConversationSummary) (*types.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := summaryKey(row.ConversationID, row.Kind)
	if _, ok := f.rows[key]; ok {
		return nil, fmt.Errorf("duplicate summary for %s", key)
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	f.rows[key] = &cp
	return row, nil
}

func (f *fakeSummaryRepo) AdvanceCursor(dbc dbctx.Context, conversationID uuid.UUID, kind string, externalID *int64, summary string, latestMessageID *uuid.UUID, latestSeq int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[summaryKey(conversationID, kind)]
	if !ok {
		return false, nil
	}
	if row.LatestSeq > latestSeq {
		return false, nil
	}
	row.Summary = summary
	row.LatestMessageID = latestMessageID
	row.LatestSeq = latestSeq
	if externalID != nil {
		row.ExternalID = externalID
	}
	return true, nil
}

func (f *fakeSummaryRepo) SetSummaryText(dbc dbctx.Context, conversationID uuid.UUID, kind string, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[summaryKey(conversationID, kind)]
	if !ok {
		return fmt.Errorf("summary not found")
	}
	row.Summary = summary
	return nil
}

func (f *fakeSummaryRepo) DeleteByConversationAndKind(dbc dbctx.Context, conversationID uuid.UUID, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, summaryKey(conversationID, kind))
	return nil
}

func (f *fakeSummaryRepo) DeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.rows {
		if strings.HasPrefix(key, conversationID.String()+"/") {
			delete(f.rows, key)
		}
	}
	return nil
}

// -------------------- conversation repo --------------------

type fakeConversationRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{rows: make(map[uuid.UUID]*types.Conversation)}
}

func (f *fakeConversationRepo) Create(dbc dbctx.Context, rows []*types.Conversation) ([]*types.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		f.rows[r.ID] = r
	}
	return rows, nil
}

func (f *fakeConversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return row, nil
}

func (f *fakeConversationRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Conversation
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeConversationRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

// -------------------- idea repo --------------------

type fakeIdeaRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.Idea
}

func newFakeIdeaRepo() *fakeIdeaRepo {
	return &fakeIdeaRepo{rows: make(map[uuid.UUID]*types.Idea)}
}

func (f *fakeIdeaRepo) Create(dbc dbctx.Context, rows []*types.Idea) ([]*types.Idea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		cp := *r
		f.rows[r.ID] = &cp
	}
	return rows, nil
}

func (f *fakeIdeaRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Idea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeIdeaRepo) GetByConversation(dbc dbctx.Context, conversationID uuid.UUID) (*types.Idea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ConversationID == conversationID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeIdeaRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Idea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Idea
	for _, r := range f.rows {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeIdeaRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("idea %s not found", id)
	}
	if v, ok := updates["status"].(string); ok {
		row.Status = v
	}
	if v, ok := updates["title"].(string); ok {
		row.Title = v
	}
	if v, ok := updates["content"].(string); ok {
		row.Content = v
	}
	if v, ok := updates["linear_issue_id"].(string); ok {
		row.LinearIssueID = v
	}
	if v, ok := updates["linear_issue_url"].(string); ok {
		row.LinearIssueURL = v
	}
	return nil
}

func (f *fakeIdeaRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

// -------------------- prompt repo --------------------

type fakePromptRepo struct {
	mu   sync.Mutex
	rows map[string]*types.Prompt
}

func newFakePromptRepo() *fakePromptRepo {
	return &fakePromptRepo{rows: make(map[string]*types.Prompt)}
}

func (f *fakePromptRepo) Upsert(dbc dbctx.Context, row *types.Prompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *row
	f.rows[row.Name] = &cp
	return nil
}

func (f *fakePromptRepo) GetByName(dbc dbctx.Context, name string) (*types.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[name]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakePromptRepo) List(dbc dbctx.Context) ([]*types.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Prompt
	for _, r := range f.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakePromptRepo) DeleteByName(dbc dbctx.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, name)
	return nil
}

// -------------------- memory repo --------------------

type fakeMemoryRepo struct {
	mu   sync.Mutex
	rows []*types.MemoryItem
}

func (f *fakeMemoryRepo) Create(dbc dbctx.Context, rows []*types.MemoryItem) ([]*types.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return rows, nil
}

func (f *fakeMemoryRepo) LexicalSearch(dbc dbctx.Context, userID uuid.UUID, query string, limit int) ([]*types.MemoryItem, error) {
	return f.ListByUser(dbc, userID, limit)
}

func (f *fakeMemoryRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.MemoryItem
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// -------------------- summarizer backend --------------------

type backendCall struct {
	Handle     *int64
	FirstIndex int
	Count      int
}

// fakeBackend records Advance calls and answers them through a scripted
// function. Probes (empty batches) and real advances both go through script.
type fakeBackend struct {
	mu       sync.Mutex
	blocking bool
	calls    []backendCall
	script   func(call backendCall) (metacognition.AdvanceResult, error)
}

func (f *fakeBackend) Blocking() bool { return f.blocking }

func (f *fakeBackend) Advance(ctx context.Context, handle *int64, firstNewIndex int, newMessages []metacognition.Message) (metacognition.AdvanceResult, error) {
	call := backendCall{Handle: handle, FirstIndex: firstNewIndex, Count: len(newMessages)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	script := f.script
	f.mu.Unlock()
	if script == nil {
		return metacognition.AdvanceResult{SummaryID: 1}, nil
	}
	return script(call)
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) call(i int) backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// advanceCalls counts calls that carried messages (probes excluded).
func (f *fakeBackend) advanceCalls() []backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []backendCall
	for _, c := range f.calls {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	return out
}

// -------------------- openai client --------------------

type fakeAIClient struct {
	mu        sync.Mutex
	generated int
	response  string
	fail      bool
}

func (f *fakeAIClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	return f.GenerateTextWithModel(ctx, "", system, user)
}

func (f *fakeAIClient) GenerateTextWithModel(ctx context.Context, model, system, user string) (string, error) {
	f.mu.Lock()
	f.generated++
	f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("model unavailable")
	}
	if f.response != "" {
		return f.response, nil
	}
	return "# Generated Idea\n\nBody.", nil
}

func (f *fakeAIClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	return map[string]any{"keywords": []any{"alpha", "beta"}}, nil
}

func (f *fakeAIClient) StreamText(ctx context.Context, system, user string, onDelta func(string)) (string, error) {
	out, err := f.GenerateText(ctx, system, user)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		onDelta(out)
	}
	return out, nil
}

func (f *fakeAIClient) DefaultModel() string { return "gpt-4o" }

func (f *fakeAIClient) generateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generated
}

// -------------------- notifier --------------------

type recordingNotifier struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (n *recordingNotifier) Publish(ctx context.Context, userID uuid.UUID, event realtime.Event, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) seen(event realtime.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

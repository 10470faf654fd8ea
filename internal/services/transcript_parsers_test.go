package services

import (
	"testing"
)

func parserByProvider(t *testing.T, provider string) TranscriptParser {
	t.Helper()
	for _, p := range DefaultTranscriptParsers() {
		if p.Provider() == provider {
			return p
		}
	}
	t.Fatalf("no parser registered for %q", provider)
	return nil
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user", "user"},
		{"Human", "user"},
		{"ASSISTANT", "assistant"},
		{"ai", "assistant"},
		{"model", "assistant"},
		{" system ", "system"},
		{"tool", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeRole(tt.in); got != tt.want {
			t.Errorf("normalizeRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNativeParser(t *testing.T) {
	raw := []byte(`{
		"title": " My Project ",
		"messages": [
			{"role": "user", "content": "I want to build a birdwatching app."},
			{"role": "assistant", "content": "  Tell me more.  "},
			{"role": "tool", "content": "ignored"},
			{"role": "user", "content": "   "}
		]
	}`)

	got, err := parserByProvider(t, "native").Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Title != "My Project" {
		t.Fatalf("title = %q", got.Title)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[1].Role != "assistant" || got.Messages[1].Content != "Tell me more." {
		t.Fatalf("messages[1] = %+v", got.Messages[1])
	}
}

func TestNativeParserRejectsEmpty(t *testing.T) {
	if _, err := parserByProvider(t, "native").Parse([]byte(`{"title":"x","messages":[]}`)); err == nil {
		t.Fatal("expected error for transcript without messages")
	}
	if _, err := parserByProvider(t, "native").Parse([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestChatGPTParserWalksFirstChildChain(t *testing.T) {
	raw := []byte(`{
		"title": "Bird app",
		"mapping": {
			"root": {"parent": "", "children": ["a"]},
			"a": {
				"parent": "root", "children": ["b", "b-regen"],
				"message": {"author": {"role": "user"}, "content": {"content_type": "text", "parts": ["First question"]}}
			},
			"b": {
				"parent": "a", "children": ["c"],
				"message": {"author": {"role": "assistant"}, "content": {"content_type": "text", "parts": ["First", "answer"]}}
			},
			"b-regen": {
				"parent": "a", "children": [],
				"message": {"author": {"role": "assistant"}, "content": {"content_type": "text", "parts": ["Regenerated answer"]}}
			},
			"c": {
				"parent": "b", "children": [],
				"message": {"author": {"role": "user"}, "content": {"content_type": "code", "parts": ["skipped"]}}
			}
		}
	}`)

	got, err := parserByProvider(t, "chatgpt").Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Title != "Bird app" {
		t.Fatalf("title = %q", got.Title)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (regenerated branch and code node excluded)", len(got.Messages))
	}
	if got.Messages[0].Content != "First question" {
		t.Fatalf("messages[0] = %+v", got.Messages[0])
	}
	// Multi-part content joins with newlines.
	if got.Messages[1].Content != "First\nanswer" {
		t.Fatalf("messages[1] = %+v", got.Messages[1])
	}
}

func TestChatGPTParserRequiresRoot(t *testing.T) {
	raw := []byte(`{"title":"x","mapping":{"a":{"parent":"b","children":[]},"b":{"parent":"a","children":[]}}}`)
	if _, err := parserByProvider(t, "chatgpt").Parse(raw); err == nil {
		t.Fatal("expected error for mapping without a root node")
	}
}

func TestClaudeParserPrefersTextFieldThenBlocks(t *testing.T) {
	raw := []byte(`{
		"name": "Claude chat",
		"chat_messages": [
			{"sender": "human", "text": "plain text field"},
			{"sender": "assistant", "text": "", "content": [
				{"type": "text", "text": "block one"},
				{"type": "tool_use", "text": "skipped"},
				{"type": "text", "text": "block two"}
			]},
			{"sender": "assistant", "text": "", "content": [{"type": "tool_use", "text": "only tools"}]}
		]
	}`)

	got, err := parserByProvider(t, "claude").Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Title != "Claude chat" {
		t.Fatalf("title = %q", got.Title)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != "user" || got.Messages[0].Content != "plain text field" {
		t.Fatalf("messages[0] = %+v", got.Messages[0])
	}
	if got.Messages[1].Content != "block one\nblock two" {
		t.Fatalf("messages[1] = %+v", got.Messages[1])
	}
}

func TestGrokParser(t *testing.T) {
	raw := []byte(`{
		"title": "Grok chat",
		"responses": [
			{"sender": "user", "message": "hello"},
			{"sender": "ai", "message": "hi there"},
			{"sender": "user", "message": ""}
		]
	}`)

	got, err := parserByProvider(t, "grok").Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[1].Role != "assistant" || got.Messages[1].Content != "hi there" {
		t.Fatalf("messages[1] = %+v", got.Messages[1])
	}
}

package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParsedMessage is a provider-neutral transcript message.
type ParsedMessage struct {
	Role    string
	Content string
}

type ParsedTranscript struct {
	Title    string
	Messages []ParsedMessage
}

// TranscriptParser converts one provider's export format into the neutral
// transcript shape. Parsers are pure; persistence happens in ImportService.
type TranscriptParser interface {
	Provider() string
	Parse(raw []byte) (ParsedTranscript, error)
}

func DefaultTranscriptParsers() []TranscriptParser {
	return []TranscriptParser{
		nativeParser{},
		chatgptParser{},
		claudeParser{},
		grokParser{},
	}
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return "user"
	case "assistant", "ai", "model":
		return "assistant"
	case "system":
		return "system"
	default:
		return ""
	}
}

// -------------------- native --------------------

// nativeParser reads the backend's own export shape:
// {"title": "...", "messages": [{"role": "...", "content": "..."}]}
type nativeParser struct{}

func (nativeParser) Provider() string { return "native" }

func (nativeParser) Parse(raw []byte) (ParsedTranscript, error) {
	var doc struct {
		Title    string `json:"title"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ParsedTranscript{}, fmt.Errorf("parse native transcript: %w", err)
	}

	out := ParsedTranscript{Title: strings.TrimSpace(doc.Title)}
	for _, m := range doc.Messages {
		role := normalizeRole(m.Role)
		content := strings.TrimSpace(m.Content)
		if role == "" || content == "" {
			continue
		}
		out.Messages = append(out.Messages, ParsedMessage{Role: role, Content: content})
	}
	if len(out.Messages) == 0 {
		return ParsedTranscript{}, fmt.Errorf("native transcript has no usable messages")
	}
	return out, nil
}

// -------------------- chatgpt --------------------

// chatgptParser reads a ChatGPT share/export conversation. Messages live in a
// "mapping" of nodes; ordering follows parent links from the root.
type chatgptParser struct{}

func (chatgptParser) Provider() string { return "chatgpt" }

type chatgptNode struct {
	Parent   string   `json:"parent"`
	Children []string `json:"children"`
	Message  *struct {
		Author struct {
			Role string `json:"role"`
		} `json:"author"`
		Content struct {
			ContentType string   `json:"content_type"`
			Parts       []string `json:"parts"`
		} `json:"content"`
	} `json:"message"`
}

func (chatgptParser) Parse(raw []byte) (ParsedTranscript, error) {
	var doc struct {
		Title   string                 `json:"title"`
		Mapping map[string]chatgptNode `json:"mapping"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ParsedTranscript{}, fmt.Errorf("parse chatgpt transcript: %w", err)
	}
	if len(doc.Mapping) == 0 {
		return ParsedTranscript{}, fmt.Errorf("chatgpt transcript has no mapping")
	}

	root := ""
	for id, node := range doc.Mapping {
		if node.Parent == "" {
			root = id
			break
		}
	}
	if root == "" {
		return ParsedTranscript{}, fmt.Errorf("chatgpt transcript has no root node")
	}

	out := ParsedTranscript{Title: strings.TrimSpace(doc.Title)}
	// Walk the first-child chain; branches beyond the first are regenerated
	// answers the share page does not display either.
	for id := root; id != ""; {
		node, ok := doc.Mapping[id]
		if !ok {
			break
		}
		if node.Message != nil && node.Message.Content.ContentType == "text" {
			role := normalizeRole(node.Message.Author.Role)
			content := strings.TrimSpace(strings.Join(node.Message.Content.Parts, "\n"))
			if role != "" && content != "" {
				out.Messages = append(out.Messages, ParsedMessage{Role: role, Content: content})
			}
		}
		if len(node.Children) == 0 {
			break
		}
		id = node.Children[0]
	}

	if len(out.Messages) == 0 {
		return ParsedTranscript{}, fmt.Errorf("chatgpt transcript has no usable messages")
	}
	return out, nil
}

// -------------------- claude --------------------

type claudeParser struct{}

func (claudeParser) Provider() string { return "claude" }

func (claudeParser) Parse(raw []byte) (ParsedTranscript, error) {
	var doc struct {
		Name         string `json:"name"`
		ChatMessages []struct {
			Sender  string `json:"sender"`
			Text    string `json:"text"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"chat_messages"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ParsedTranscript{}, fmt.Errorf("parse claude transcript: %w", err)
	}

	out := ParsedTranscript{Title: strings.TrimSpace(doc.Name)}
	for _, m := range doc.ChatMessages {
		role := normalizeRole(m.Sender)
		if role == "" {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			var parts []string
			for _, c := range m.Content {
				if c.Type == "text" && strings.TrimSpace(c.Text) != "" {
					parts = append(parts, strings.TrimSpace(c.Text))
				}
			}
			text = strings.Join(parts, "\n")
		}
		if text == "" {
			continue
		}
		out.Messages = append(out.Messages, ParsedMessage{Role: role, Content: text})
	}

	if len(out.Messages) == 0 {
		return ParsedTranscript{}, fmt.Errorf("claude transcript has no usable messages")
	}
	return out, nil
}

// -------------------- grok --------------------

type grokParser struct{}

func (grokParser) Provider() string { return "grok" }

func (grokParser) Parse(raw []byte) (ParsedTranscript, error) {
	var doc struct {
		Title     string `json:"title"`
		Responses []struct {
			Sender  string `json:"sender"`
			Message string `json:"message"`
		} `json:"responses"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ParsedTranscript{}, fmt.Errorf("parse grok transcript: %w", err)
	}

	out := ParsedTranscript{Title: strings.TrimSpace(doc.Title)}
	for _, r := range doc.Responses {
		role := normalizeRole(r.Sender)
		content := strings.TrimSpace(r.Message)
		if role == "" || content == "" {
			continue
		}
		out.Messages = append(out.Messages, ParsedMessage{Role: role, Content: content})
	}

	if len(out.Messages) == 0 {
		return ParsedTranscript{}, fmt.Errorf("grok transcript has no usable messages")
	}
	return out, nil
}

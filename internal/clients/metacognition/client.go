package metacognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/yungbote/ideaforge-backend/internal/platform/envutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/httpx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// Message is the wire shape the summarizer accepts.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AdvanceResult is the normalized outcome of a manage_conversation round.
// LatestProcessedIndex is nil until the service has incorporated anything.
type AdvanceResult struct {
	SummaryID            int64
	LatestSummary        string
	LatestProcessedIndex *int
}

// Client wraps the metacognition summarizer microservice. An Advance call with
// firstNewMessageIndex=0 and no messages is a status probe: it reports the
// current summary and processed index without advancing anything.
type Client interface {
	Advance(ctx context.Context, summaryID *int64, firstNewMessageIndex int, newMessages []Message) (AdvanceResult, error)
	UploadDocument(ctx context.Context, content, description, documentType string, documentID *int64) (int64, error)
	LinkDocument(ctx context.Context, conversationID, documentID int64) error
}

// IndexMismatchError reports that the service's accepted-message count does
// not match the index we sent. Expected is the index the service wants next.
type IndexMismatchError struct {
	Expected int
	Got      int
	Message  string
}

func (e *IndexMismatchError) Error() string {
	return fmt.Sprintf("metacognition index mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ProtocolError reports a response that violated the service contract
// (missing summary_id, wrong types). Never retried.
type ProtocolError struct {
	Reason string
	Body   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("metacognition protocol error: %s", e.Reason)
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("metacognition http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

// AsIndexMismatch unwraps err into an IndexMismatchError when present.
func AsIndexMismatch(err error) (*IndexMismatchError, bool) {
	var im *IndexMismatchError
	if errors.As(err, &im) {
		return im, true
	}
	return nil, false
}

type client struct {
	log        *logger.Logger
	baseURL    string
	authToken  string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := envutil.String("METACOGNITION_API_URL", "")
	if baseURL == "" {
		return nil, fmt.Errorf("missing METACOGNITION_API_URL")
	}
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	timeout := envutil.DurationSeconds("METACOGNITION_TIMEOUT_SECONDS", 120*time.Second)
	maxRetries := envutil.Int("METACOGNITION_MAX_RETRIES", 3)

	return &client{
		log:        log.With("client", "MetacognitionClient"),
		baseURL:    baseURL,
		authToken:  envutil.String("METACOGNITION_AUTH_TOKEN", ""),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}, nil
}

// Matches the service's mismatch wording: "Expected index {N} ... got {M}".
var indexMismatchRe = regexp.MustCompile(`Expected index (\d+).*?got (\d+)`)

func (c *client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Index mismatches arrive as error bodies; convert once, here, into the
		// typed variant so callers never scrape strings.
		if im := parseIndexMismatch(raw); im != nil {
			return resp, raw, im
		}
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func parseIndexMismatch(raw []byte) *IndexMismatchError {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		return nil
	}
	m := indexMismatchRe.FindStringSubmatch(body.Message)
	if m == nil {
		return nil
	}
	expected, err1 := strconv.Atoi(m[1])
	got, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return nil
	}
	return &IndexMismatchError{Expected: expected, Got: got, Message: body.Message}
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return &ProtocolError{Reason: "undecodable response body", Body: string(raw)}
			}
			return nil
		}

		if _, mismatch := AsIndexMismatch(err); mismatch {
			return err
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.Jitter(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("metacognition request retrying",
			"path", path,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

type manageConversationRequest struct {
	SummaryID          *int64    `json:"summary_id"`
	IndexOfFirstNewMsg int       `json:"index_of_first_new_message"`
	NewMessages        []Message `json:"new_messages"`
}

type manageConversationResponse struct {
	Status                    string          `json:"status"`
	SummaryID                 json.RawMessage `json:"summary_id"`
	LatestSummary             *string         `json:"latest_summary"`
	LatestProcessedMessageIdx *int            `json:"latest_processed_message_idx"`
}

func (c *client) Advance(ctx context.Context, summaryID *int64, firstNewMessageIndex int, newMessages []Message) (AdvanceResult, error) {
	if firstNewMessageIndex < 0 {
		return AdvanceResult{}, fmt.Errorf("negative first_new_message_index")
	}
	if newMessages == nil {
		newMessages = []Message{}
	}
	req := manageConversationRequest{
		SummaryID:          summaryID,
		IndexOfFirstNewMsg: firstNewMessageIndex,
		NewMessages:        newMessages,
	}
	var resp manageConversationResponse
	if err := c.do(ctx, "/manage_conversation", req, &resp); err != nil {
		return AdvanceResult{}, err
	}

	// The contract guarantees an integer summary_id; fail loudly on violation
	// instead of silently coercing.
	var sid int64
	if err := json.Unmarshal(resp.SummaryID, &sid); err != nil || len(resp.SummaryID) == 0 {
		return AdvanceResult{}, &ProtocolError{Reason: "summary_id missing or not an integer", Body: string(resp.SummaryID)}
	}
	if resp.LatestSummary == nil {
		return AdvanceResult{}, &ProtocolError{Reason: "latest_summary missing"}
	}

	return AdvanceResult{
		SummaryID:            sid,
		LatestSummary:        *resp.LatestSummary,
		LatestProcessedIndex: resp.LatestProcessedMessageIdx,
	}, nil
}

type uploadDocumentRequest struct {
	Content      string `json:"content"`
	Description  string `json:"description"`
	DocumentType string `json:"document_type"`
	DocumentID   *int64 `json:"document_id"`
}

type uploadDocumentResponse struct {
	DocumentID *int64 `json:"document_id"`
}

func (c *client) UploadDocument(ctx context.Context, content, description, documentType string, documentID *int64) (int64, error) {
	req := uploadDocumentRequest{
		Content:      content,
		Description:  description,
		DocumentType: documentType,
		DocumentID:   documentID,
	}
	var resp uploadDocumentResponse
	if err := c.do(ctx, "/upload_document", req, &resp); err != nil {
		return 0, err
	}
	if resp.DocumentID == nil {
		return 0, &ProtocolError{Reason: "document_id missing"}
	}
	return *resp.DocumentID, nil
}

type linkDocumentRequest struct {
	ConversationID int64 `json:"conversation_id"`
	DocumentID     int64 `json:"document_id"`
}

func (c *client) LinkDocument(ctx context.Context, conversationID, documentID int64) error {
	return c.do(ctx, "/add_document_to_conversation", linkDocumentRequest{
		ConversationID: conversationID,
		DocumentID:     documentID,
	}, nil)
}

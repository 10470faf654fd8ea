package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/ideaforge-backend/internal/platform/httpx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// Issue is the subset of a Linear issue the backend keeps after a push.
type Issue struct {
	ID         string
	Identifier string
	URL        string
}

// Client pushes generated ideas to Linear as issues.
type Client interface {
	CreateIssue(ctx context.Context, title string, description string) (Issue, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	teamID     string
	httpClient *http.Client

	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("LINEAR_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing LINEAR_API_KEY")
	}

	teamID := strings.TrimSpace(os.Getenv("LINEAR_TEAM_ID"))
	if teamID == "" {
		return nil, fmt.Errorf("missing LINEAR_TEAM_ID")
	}

	baseURL := strings.TrimSpace(os.Getenv("LINEAR_API_URL"))
	if baseURL == "" {
		baseURL = "https://api.linear.app/graphql"
	}

	timeoutSec := 30
	if v := os.Getenv("LINEAR_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 3
	if v := os.Getenv("LINEAR_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	return &client{
		log:        log.With("client", "LinearClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		teamID:     teamID,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type linearHTTPError struct {
	StatusCode int
	Body       string
}

func (e *linearHTTPError) Error() string {
	return fmt.Sprintf("linear http %d: %s", e.StatusCode, e.Body)
}

func (e *linearHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (c *client) doOnce(ctx context.Context, body graphqlRequest) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, &buf)
	if err != nil {
		return nil, nil, err
	}
	// Linear personal API keys are sent bare, not as a Bearer token.
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

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
		return resp, raw, &linearHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, body graphqlRequest, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			var envelope struct {
				Data   json.RawMessage `json:"data"`
				Errors []graphqlError  `json:"errors"`
			}
			if uErr := json.Unmarshal(raw, &envelope); uErr != nil {
				return fmt.Errorf("linear decode error: %w; raw=%s", uErr, string(raw))
			}
			if len(envelope.Errors) > 0 {
				return fmt.Errorf("linear graphql error: %s", envelope.Errors[0].Message)
			}
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(envelope.Data, out); uErr != nil {
				return fmt.Errorf("linear decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.Jitter(sleepFor)

		c.log.Warn("Linear request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

const issueCreateMutation = `mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue {
      id
      identifier
      url
    }
  }
}`

func (c *client) CreateIssue(ctx context.Context, title string, description string) (Issue, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Issue{}, fmt.Errorf("issue title required")
	}

	req := graphqlRequest{
		Query: issueCreateMutation,
		Variables: map[string]any{
			"input": map[string]any{
				"teamId":      c.teamID,
				"title":       title,
				"description": description,
			},
		},
	}

	var resp struct {
		IssueCreate struct {
			Success bool `json:"success"`
			Issue   struct {
				ID         string `json:"id"`
				Identifier string `json:"identifier"`
				URL        string `json:"url"`
			} `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return Issue{}, err
	}
	if !resp.IssueCreate.Success || resp.IssueCreate.Issue.ID == "" {
		return Issue{}, fmt.Errorf("linear issueCreate did not return an issue")
	}

	c.log.Info("Created Linear issue",
		"issue_id", resp.IssueCreate.Issue.ID,
		"identifier", resp.IssueCreate.Issue.Identifier,
	)

	return Issue{
		ID:         resp.IssueCreate.Issue.ID,
		Identifier: resp.IssueCreate.Issue.Identifier,
		URL:        resp.IssueCreate.Issue.URL,
	}, nil
}

package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/ideaforge-backend/internal/clients/openai"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// charsPerToken is the estimation heuristic used everywhere a real tokenizer
// would be overkill.
const charsPerToken = 4

const (
	promptOverheadTokens = 1500
	keywordChunkCap      = 25
	reduceConcurrency    = 4
)

// EstimateTokens approximates the token cost of the given texts, rounding up.
func EstimateTokens(texts ...string) int {
	chars := 0
	for _, t := range texts {
		chars += len(t)
	}
	return (chars + charsPerToken - 1) / charsPerToken
}

// chunkCharBudget derives how many characters of source text fit in one model
// call after reserving room for the prompt scaffolding and the completion.
func chunkCharBudget(spec ModelSpec) int {
	budget := spec.ContextWindow - promptOverheadTokens - spec.MaxCompletionTokens
	if budget < 500 {
		budget = 500
	}
	return budget * charsPerToken
}

func splitIntoChunks(text string, chunkSize int, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkSize < 200 {
		chunkSize = 200
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	out := []string{}
	for start := 0; start < len(text); start += step {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		p := strings.TrimSpace(text[start:end])
		if p != "" {
			out = append(out, p)
		}
		if end == len(text) {
			break
		}
	}
	return out
}

// TextReductionService runs token-budget-aware map-reduce passes over text
// that may exceed a single model call: keyword extraction and document
// summarization. Used by idea generation and by document uploads.
type TextReductionService interface {
	ExtractKeywords(ctx context.Context, text string, maxKeywords int) ([]string, error)
	SummarizeDocument(ctx context.Context, text string) (string, error)
}

type textReductionService struct {
	log     *logger.Logger
	ai      openai.Client
	catalog *ModelCatalog
}

func NewTextReductionService(baseLog *logger.Logger, ai openai.Client, catalog *ModelCatalog) (TextReductionService, error) {
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("model catalog required")
	}
	return &textReductionService{
		log:     baseLog.With("service", "TextReductionService"),
		ai:      ai,
		catalog: catalog,
	}, nil
}

var keywordSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"keywords": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"keywords"},
	"additionalProperties": false,
}

func (s *textReductionService) ExtractKeywords(ctx context.Context, text string, maxKeywords int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if maxKeywords <= 0 {
		maxKeywords = keywordChunkCap
	}

	spec := s.catalog.Default()
	chunks := splitIntoChunks(text, chunkCharBudget(spec), 0)
	if len(chunks) == 0 {
		return nil, nil
	}

	system := fmt.Sprintf("Extract up to %d keywords that capture the topics and significant entities of the text. Return lowercase keywords.", maxKeywords)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var candidates []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reduceConcurrency)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			obj, err := s.ai.GenerateJSON(gctx, system, chunk, "keywords", keywordSchema)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, kw := range stringSlice(obj["keywords"]) {
				kw = strings.ToLower(strings.TrimSpace(kw))
				if kw == "" || seen[kw] {
					continue
				}
				seen[kw] = true
				candidates = append(candidates, kw)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("keyword extraction: %w", err)
	}

	sort.Strings(candidates)
	if len(candidates) <= maxKeywords {
		return candidates, nil
	}

	// Reduce: the union exceeded the cap, so one more pass picks the best.
	reduceSystem := fmt.Sprintf("From the candidate keywords below, select the %d most representative. Return them as keywords.", maxKeywords)
	obj, err := s.ai.GenerateJSON(ctx, reduceSystem, strings.Join(candidates, "\n"), "keywords", keywordSchema)
	if err != nil {
		return nil, fmt.Errorf("keyword reduction: %w", err)
	}
	reduced := stringSlice(obj["keywords"])
	if len(reduced) == 0 {
		return candidates[:maxKeywords], nil
	}
	if len(reduced) > maxKeywords {
		reduced = reduced[:maxKeywords]
	}
	return reduced, nil
}

func (s *textReductionService) SummarizeDocument(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	spec := s.catalog.Default()
	budget := chunkCharBudget(spec)

	const system = "Summarize the document excerpt below. Preserve concrete facts, decisions, and named entities. Output only the summary."

	for round := 0; ; round++ {
		chunks := splitIntoChunks(text, budget, 0)
		if len(chunks) <= 1 {
			return s.ai.GenerateText(ctx, system, text)
		}
		if round >= 5 {
			return "", fmt.Errorf("document did not converge after %d reduction rounds", round)
		}

		s.log.Debug("Map-reduce summarization round", "round", round, "chunks", len(chunks))

		summaries := make([]string, len(chunks))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(reduceConcurrency)
		for i, chunk := range chunks {
			i, chunk := i, chunk
			g.Go(func() error {
				out, err := s.ai.GenerateText(gctx, system, chunk)
				if err != nil {
					return err
				}
				summaries[i] = strings.TrimSpace(out)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", fmt.Errorf("document summarization: %w", err)
		}

		text = strings.Join(summaries, "\n\n")
	}
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

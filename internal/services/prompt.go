package services

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type PromptService interface {
	// SeedDefaults upserts the built-in prompts so a fresh install works
	// without manual prompt setup. Existing rows win.
	SeedDefaults(dbc dbctx.Context) error
	List(dbc dbctx.Context) ([]*types.Prompt, error)
	Get(dbc dbctx.Context, name string) (*types.Prompt, error)
	Upsert(dbc dbctx.Context, name, content, description string) error
	Delete(dbc dbctx.Context, name string) error
}

type promptService struct {
	db      *gorm.DB
	log     *logger.Logger
	prompts repos.PromptRepo
}

func NewPromptService(db *gorm.DB, baseLog *logger.Logger, promptRepo repos.PromptRepo) PromptService {
	return &promptService{
		db:      db,
		log:     baseLog.With("service", "PromptService"),
		prompts: promptRepo,
	}
}

func (s *promptService) SeedDefaults(dbc dbctx.Context) error {
	defaults := []*types.Prompt{
		{Name: ideaPromptName, Content: defaultIdeaSystemPrompt, Description: "System prompt for project draft generation"},
		{Name: chatPromptName, Content: defaultChatSystemPrompt, Description: "System prompt for idea refinement chat"},
	}
	for _, p := range defaults {
		existing, err := s.prompts.GetByName(dbc, p.Name)
		if err != nil {
			return fmt.Errorf("seed prompt %s: %w", p.Name, err)
		}
		if existing != nil {
			continue
		}
		if err := s.prompts.Upsert(dbc, p); err != nil {
			return fmt.Errorf("seed prompt %s: %w", p.Name, err)
		}
		s.log.Info("Seeded default prompt", "name", p.Name)
	}
	return nil
}

func (s *promptService) List(dbc dbctx.Context) ([]*types.Prompt, error) {
	return s.prompts.List(dbc)
}

func (s *promptService) Get(dbc dbctx.Context, name string) (*types.Prompt, error) {
	p, err := s.prompts.GetByName(dbc, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("prompt not found")
	}
	return p, nil
}

func (s *promptService) Upsert(dbc dbctx.Context, name, content, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("prompt name required")
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("prompt content required")
	}
	return s.prompts.Upsert(dbc, &types.Prompt{
		Name:        name,
		Content:     content,
		Description: strings.TrimSpace(description),
	})
}

func (s *promptService) Delete(dbc dbctx.Context, name string) error {
	return s.prompts.DeleteByName(dbc, strings.TrimSpace(name))
}

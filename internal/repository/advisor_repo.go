package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"alpatrade/config"
	"alpatrade/internal/dto"
	"alpatrade/pkg/logger"
)

// AdvisorRepository produces an AI narrative for a run: a short assessment of
// the results and suggestions when the run failed or was flagged.
type AdvisorRepository interface {
	Enabled() bool
	NarrateRun(ctx context.Context, summary dto.RunSummaryRow, verdict *dto.ValidationVerdict) (string, error)
}

type advisorRepository struct {
	cfg         *config.Config
	logger      *logger.Logger
	genAiClient *genai.Client
}

func NewAdvisorRepository(cfg *config.Config, log *logger.Logger) (AdvisorRepository, error) {
	if cfg.Advisor.APIKey == "" {
		return &advisorRepository{cfg: cfg, logger: log}, nil
	}

	genAiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.Advisor.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create advisor client: %w", err)
	}

	return &advisorRepository{
		cfg:         cfg,
		logger:      log,
		genAiClient: genAiClient,
	}, nil
}

func (r *advisorRepository) Enabled() bool {
	return r.genAiClient != nil
}

func (r *advisorRepository) NarrateRun(ctx context.Context, summary dto.RunSummaryRow, verdict *dto.ValidationVerdict) (string, error) {
	if r.genAiClient == nil {
		return "", nil
	}

	prompt, err := r.promptNarrateRun(summary, verdict)
	if err != nil {
		return "", fmt.Errorf("failed to build advisor prompt: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, "user"),
	}
	resp, err := r.genAiClient.Models.GenerateContent(ctx, r.cfg.Advisor.Model, contents, nil)
	if err != nil {
		r.logger.ErrorContext(ctx, "Advisor request failed", logger.ErrorField(err))
		return "", fmt.Errorf("failed to generate run narrative: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty advisor response")
	}
	return text, nil
}

func (r *advisorRepository) promptNarrateRun(summary dto.RunSummaryRow, verdict *dto.ValidationVerdict) (string, error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`You are a trading results reviewer. Given the run summary below,
write a concise assessment (max 5 sentences) of the outcome: what worked,
what looks anomalous, and one concrete suggestion for the next run.

Run summary:
%s
`, string(summaryJSON))

	if verdict != nil {
		verdictJSON, err := json.Marshal(verdict)
		if err != nil {
			return "", err
		}
		prompt += fmt.Sprintf("\nValidation verdict:\n%s\n", string(verdictJSON))
	}

	return prompt, nil
}

package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shineIB/flowsync/internal/models"
)

// Service runs diagram reviews: through the configured provider when
// one exists, otherwise through the offline report. Provider failures
// surface to the caller only; they never touch the sync protocol.
type Service struct {
	provider Provider
	prompts  *PromptManager
	log      *zap.Logger
}

func NewService(provider Provider, prompts *PromptManager, log *zap.Logger) *Service {
	return &Service{provider: provider, prompts: prompts, log: log}
}

// Configured reports whether a live provider is attached.
func (s *Service) Configured() bool { return s.provider != nil }

func (s *Service) Analyze(ctx context.Context, req *models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	stamp := time.Now().UTC().Format(time.RFC3339)

	if s.provider == nil {
		return &models.AnalyzeResponse{
			Analysis:  offlineReport(req.Nodes, req.Edges),
			Timestamp: stamp,
		}, nil
	}

	prompt := s.prompts.BuildPrompt(FormatDiagram(req.Nodes, req.Edges))

	start := time.Now()
	text, err := s.provider.GenerateAnalysis(ctx, prompt)
	if err != nil {
		s.log.Error("analysis provider failed",
			zap.String("provider", s.provider.Name()),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("analysis generated",
		zap.String("provider", s.provider.Name()),
		zap.Int64("processing_time_ms", time.Since(start).Milliseconds()))

	return &models.AnalyzeResponse{Analysis: text, Timestamp: stamp}, nil
}

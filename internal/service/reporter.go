package service

import (
	"context"

	"alpatrade/config"
	"alpatrade/internal/dto"
	"alpatrade/internal/repository"
	"alpatrade/pkg/logger"
)

const defaultSummaryLimit = 20

// Reporter serves read-only snapshots of persisted runs. It never mutates
// state.
type Reporter interface {
	Summary(ctx context.Context, req dto.ReportRequest) ([]dto.RunSummaryRow, error)
	Detail(ctx context.Context, runID string) (*dto.RunDetail, error)
}

type reporter struct {
	cfg            *config.Config
	log            *logger.Logger
	runRepo        repository.RunRepository
	variationRepo  repository.VariationRepository
	tradeRepo      repository.TradeRepository
	validationRepo repository.ValidationRepository
	advisorRepo    repository.AdvisorRepository
}

func NewReporter(
	cfg *config.Config,
	log *logger.Logger,
	runRepo repository.RunRepository,
	variationRepo repository.VariationRepository,
	tradeRepo repository.TradeRepository,
	validationRepo repository.ValidationRepository,
	advisorRepo repository.AdvisorRepository,
) Reporter {
	return &reporter{
		cfg:            cfg,
		log:            log,
		runRepo:        runRepo,
		variationRepo:  variationRepo,
		tradeRepo:      tradeRepo,
		validationRepo: validationRepo,
		advisorRepo:    advisorRepo,
	}
}

func (s *reporter) Summary(ctx context.Context, req dto.ReportRequest) ([]dto.RunSummaryRow, error) {
	param := repository.GetRunsParam{Limit: req.Limit}
	if param.Limit <= 0 {
		param.Limit = defaultSummaryLimit
	}
	if req.Mode != "" {
		param.Mode = &req.Mode
	}
	if req.RunID != "" {
		param.RunID = &req.RunID
	}

	runs, err := s.runRepo.Get(ctx, param)
	if err != nil {
		return nil, err
	}

	rows := make([]dto.RunSummaryRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, toRunSummaryRow(run))
	}
	return rows, nil
}

func (s *reporter) Detail(ctx context.Context, runID string) (*dto.RunDetail, error) {
	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	detail := &dto.RunDetail{Run: toRunSummaryRow(*run)}

	variations, err := s.variationRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, v := range variations {
		detail.Variations = append(detail.Variations, toVariationDTO(v))
	}

	trades, err := s.tradeRepo.Get(ctx, repository.GetTradesParam{RunID: &runID})
	if err != nil {
		return nil, err
	}
	detail.Trades = toTradeDTOs(trades)

	verdicts, err := s.validationRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, v := range verdicts {
		detail.Validations = append(detail.Validations, toVerdictDTO(v))
	}

	// A failed run gets an optional narrative; the report never fails because
	// the advisor does.
	if run.Status == dto.RunStatusFailed && s.advisorRepo.Enabled() {
		var latest *dto.ValidationVerdict
		if n := len(detail.Validations); n > 0 {
			latest = &detail.Validations[n-1]
		}
		narrative, err := s.advisorRepo.NarrateRun(ctx, detail.Run, latest)
		if err != nil {
			s.log.WarnContext(ctx, "advisor narrative unavailable",
				logger.StringField("run_id", runID), logger.ErrorField(err))
		} else {
			detail.Narrative = narrative
		}
	}

	return detail, nil
}

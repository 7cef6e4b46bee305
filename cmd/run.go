package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"alpatrade/internal/bus"
	"alpatrade/internal/dto"
	"alpatrade/internal/repository"
	"alpatrade/internal/service"
)

var (
	runMode     string
	runStrategy string
	runSymbols  []string
	runCapital  float64
	runDuration time.Duration
	runMonths   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch a single pipeline run and wait for it to finish",
	Run:   RunPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", dto.ModeBacktest, "pipeline mode: full, backtest, validate, paper, reconcile")
	runCmd.Flags().StringVar(&runStrategy, "strategy", dto.StrategyBuyTheDip, "strategy identifier")
	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "symbols to trade")
	runCmd.Flags().Float64Var(&runCapital, "capital", 0, "initial capital (0 uses the configured default)")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "paper trading session duration")
	runCmd.Flags().IntVar(&runMonths, "months", 1, "backtest window in months, counted back from now")

	rootCmd.AddCommand(runCmd)
}

func RunPipeline(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}
	defer appDep.Close()

	repo, err := repository.NewRepository(appDep.cfg, appDep.db.DB, appDep.log, appDep.cache)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}

	msgBus := bus.NewInMemoryBus(appDep.log)
	defer msgBus.Close()
	services := service.NewService(appDep.cfg, appDep.log, repo, msgBus)

	command, err := buildRunCommand()
	if err != nil {
		log.Fatalf("Invalid run command: %v", err)
	}
	if err := appDep.validator.Struct(&command); err != nil {
		log.Fatalf("Invalid run command: %v", err)
	}

	handle, err := services.Orchestrator.Dispatch(ctx, command)
	if err != nil {
		log.Fatalf("Failed to dispatch run: %v", err)
	}

	select {
	case <-ctx.Done():
		handle.Cancel()
		<-handle.Done
	case <-handle.Done:
	}

	detail, err := services.Reporter.Detail(context.Background(), handle.RunID)
	if err != nil {
		log.Fatalf("Failed to load run report: %v", err)
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	fmt.Println(string(out))
}

func buildRunCommand() (dto.RunCommand, error) {
	command := dto.RunCommand{Mode: runMode}
	end := time.Now().UTC()

	switch runMode {
	case dto.ModeBacktest, dto.ModeFull:
		command.Backtest = &dto.BacktestRequest{
			Strategy:       runStrategy,
			Symbols:        runSymbols,
			StartDate:      end.AddDate(0, -runMonths, 0),
			EndDate:        end,
			InitialCapital: runCapital,
		}
	}
	if runMode == dto.ModePaper || runMode == dto.ModeFull {
		params, err := paperParams(runStrategy)
		if err != nil {
			return dto.RunCommand{}, err
		}
		command.Paper = &dto.PaperTradeStart{
			Symbols:  runSymbols,
			Strategy: runStrategy,
			Params:   params,
			Duration: runDuration,
		}
	}
	return command, nil
}

// paperParams picks a conservative starting point for a CLI-launched paper
// session. Tuned parameters come from a prior backtest via the API instead.
func paperParams(strategyID string) (dto.StrategyParams, error) {
	switch strategyID {
	case dto.StrategyBuyTheDip:
		return dto.StrategyParams{BuyTheDip: &dto.BuyTheDipParams{
			DipThreshold:    0.05,
			TakeProfitPct:   0.015,
			StopLossPct:     0.01,
			HoldDays:        3,
			PositionSizePct: 0.10,
		}}, nil
	case dto.StrategyMomentum:
		return dto.StrategyParams{Momentum: &dto.MomentumParams{
			LookbackPeriod:    20,
			MomentumThreshold: 5.0,
			TakeProfitPct:     0.10,
			StopLossPct:       0.05,
			HoldDays:          5,
			PositionSizePct:   0.10,
		}}, nil
	case dto.StrategyVIX:
		return dto.StrategyParams{VIX: &dto.VIXParams{VIXThreshold: 25, PositionSizePct: 0.10}}, nil
	default:
		return dto.StrategyParams{}, fmt.Errorf("strategy %q has no poll-driven entry signal and cannot run in paper mode", strategyID)
	}
}

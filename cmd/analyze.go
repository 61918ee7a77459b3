package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/forensicvalue/forensic-cli/internal/memory"
	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
	"github.com/forensicvalue/forensic-cli/internal/workflow"
)

var (
	analyzeDepth      string
	analyzeHITL       string
	analyzeSector     string
	analyzeCompany    string
	analyzeUser       string
	analyzeIterations int
	analyzeShowMemory bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <ticker> [ticker...]",
	Short: "Queue forensic analyses for one or more tickers",
	Long:  "Creates a pending analysis and workflow session per ticker. Submission is concurrent and rate limited; the orchestrator picks runs up from the pending state.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		maxIter := analyzeIterations
		if maxIter <= 0 {
			maxIter = cfg.Analysis.MaxIterations
		}

		return submitAnalyses(ctx, st, args, submitOptions{
			Depth:         model.AnalysisDepth(analyzeDepth),
			HITLMode:      model.HITLMode(analyzeHITL),
			Sector:        analyzeSector,
			CompanyName:   analyzeCompany,
			UserID:        analyzeUser,
			MaxIterations: maxIter,
			Concurrency:   cfg.Batch.MaxConcurrent,
			RatePerSec:    cfg.Batch.RatePerSecond,
			MemoryLimit:   cfg.Memory.ContextLimit,
			ShowMemory:    analyzeShowMemory,
		})
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDepth, "depth", "", "analysis depth: quick or full (default full)")
	analyzeCmd.Flags().StringVar(&analyzeHITL, "hitl", "", "human-in-the-loop mode: interactive or automatic (default interactive)")
	analyzeCmd.Flags().StringVar(&analyzeSector, "sector", "", "company sector, improves feedback retrieval")
	analyzeCmd.Flags().StringVar(&analyzeCompany, "company", "", "full company name (single-ticker runs only)")
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "", "requesting user id")
	analyzeCmd.Flags().IntVar(&analyzeIterations, "max-iterations", 0, "critic iteration bound (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeShowMemory, "show-memory", false, "print the retrieved feedback context per ticker")
	rootCmd.AddCommand(analyzeCmd)
}

type submitOptions struct {
	Depth         model.AnalysisDepth
	HITLMode      model.HITLMode
	Sector        string
	CompanyName   string
	UserID        string
	MaxIterations int
	Concurrency   int
	RatePerSec    float64
	MemoryLimit   int
	ShowMemory    bool
}

// submitAnalyses queues one analysis per ticker, bounded by a worker
// limit and a submission rate.
func submitAnalyses(ctx context.Context, st store.Store, tickers []string, opts submitOptions) error {
	if len(tickers) > 1 && opts.CompanyName != "" {
		return eris.New("--company applies to a single ticker only")
	}

	cp := workflow.NewCheckpointer(st)
	mem := memory.New(st, opts.MemoryLimit)
	limiter := rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)

	zap.L().Info("queueing analyses",
		zap.Int("tickers", len(tickers)),
		zap.Int("concurrency", opts.Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	var queued, failed atomic.Int64

	for _, ticker := range tickers {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			log := zap.L().With(zap.String("ticker", ticker))

			a, err := st.CreateAnalysis(gctx, model.NewAnalysis{
				Ticker:      ticker,
				CompanyName: opts.CompanyName,
				Sector:      opts.Sector,
				Depth:       opts.Depth,
				HITLMode:    opts.HITLMode,
				UserID:      opts.UserID,
			})
			if err != nil {
				failed.Add(1)
				log.Error("create analysis failed", zap.Error(err))
				return nil // don't abort the batch on one bad ticker
			}

			sess, err := cp.Start(gctx, a.ID, opts.MaxIterations)
			if err != nil {
				failed.Add(1)
				log.Error("create session failed", zap.Error(err))
				return nil
			}

			mc, err := mem.Context(gctx, a.Ticker, a.Sector, "")
			if err != nil {
				log.Warn("feedback retrieval failed", zap.Error(err))
			} else if !mc.Empty() {
				log.Info("prior feedback available",
					zap.Int("company_specific", len(mc.CompanySpecific)),
					zap.Int("sector_patterns", len(mc.SectorPatterns)))
				if opts.ShowMemory {
					fmt.Fprintf(os.Stdout, "\n-- %s --\n%s\n", a.Ticker, mc.Format())
				}
			}

			queued.Add(1)
			fmt.Fprintf(os.Stdout, "queued %s  analysis=%s session=%s\n", a.Ticker, a.ID, sess.ID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "queue analyses")
	}

	zap.L().Info("submission complete",
		zap.Int64("queued", queued.Load()),
		zap.Int64("failed", failed.Load()))
	if failed.Load() > 0 {
		return eris.Errorf("%d of %d tickers failed to queue", failed.Load(), len(tickers))
	}
	return nil
}

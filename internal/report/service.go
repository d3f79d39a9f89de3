package report

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Ichinga-Samuel/MonieWatch/internal/aggregator"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/logging"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/workerpool"
)

var (
	reportsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moniewatch_reports_generated_total",
		Help: "Total number of reports generated end to end",
	})
	reportsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moniewatch_reports_failed_total",
		Help: "Total number of report runs that failed, by pipeline stage",
	}, []string{"stage"})
	reportDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "moniewatch_report_duration_seconds",
		Help:    "End to end report generation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

// Renderer turns a draft into a file artifact.
type Renderer interface {
	Render(draft *aggregator.ReportDraft) (*Artifact, error)
}

// Store persists report records.
type Store interface {
	SaveReport(ctx context.Context, name, url, username string) error
}

// Service runs the full report pipeline: build a draft, render it, upload
// the artifact, record it, and mail the link to the principal.
type Service struct {
	drafts   *aggregator.Service
	renderer Renderer
	uploader Uploader
	store    Store
	mailer   Mailer
	logger   zerolog.Logger
}

// NewService wires the pipeline. uploader, store and mailer may each be nil,
// in which case the corresponding stage is skipped.
func NewService(drafts *aggregator.Service, renderer Renderer, uploader Uploader, store Store, mailer Mailer) *Service {
	return &Service{
		drafts:   drafts,
		renderer: renderer,
		uploader: uploader,
		store:    store,
		mailer:   mailer,
		logger:   logging.NewLogger("report"),
	}
}

// Generate runs the pipeline for one principal.
func (s *Service) Generate(ctx context.Context, principal aggregator.Principal, opts aggregator.Options) error {
	start := time.Now()
	logger := s.logger.With().Str("principal", principal.Username).Logger()

	draft, err := s.drafts.BuildDraft(ctx, principal, opts)
	if err != nil {
		return s.fail(logger, "draft", err)
	}

	artifact, err := s.renderer.Render(draft)
	if err != nil {
		return s.fail(logger, "render", err)
	}

	var upload *Upload
	if s.uploader != nil {
		upload, err = s.uploader.Upload(ctx, artifact)
		if err != nil {
			return s.fail(logger, "upload", err)
		}
	}

	if s.store != nil && upload != nil {
		if err := s.store.SaveReport(ctx, upload.Name, upload.URL, principal.Username); err != nil {
			return s.fail(logger, "persist", err)
		}
	}

	if s.mailer != nil && upload != nil {
		if err := s.mailer.SendReportLink(ctx, principal.Email, draft.Title, upload.URL); err != nil {
			return s.fail(logger, "email", err)
		}
	}

	duration := time.Since(start)
	reportsGeneratedTotal.Inc()
	reportDurationSeconds.Observe(duration.Seconds())

	logger.Info().
		Str("artifact", artifact.Name).
		Int("transactions", len(draft.Transactions)).
		Dur("duration", duration).
		Msg("Report generated")
	return nil
}

// GenerateAll runs the pipeline for every principal concurrently and returns
// the number of failed runs. A failed principal never aborts the others.
func (s *Service) GenerateAll(ctx context.Context, principals []aggregator.Principal, opts aggregator.Options) int {
	if len(principals) == 0 {
		return 0
	}

	pool := workerpool.New[struct{}](len(principals))
	for _, principal := range principals {
		p := principal
		pool.Submit(func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.Generate(ctx, p, opts)
		})
	}

	failed := 0
	for _, result := range pool.Run(ctx) {
		if result.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Warn().
			Int("failed", failed).
			Int("total", len(principals)).
			Msg("Some report runs failed")
	}
	return failed
}

func (s *Service) fail(logger zerolog.Logger, stage string, err error) error {
	reportsFailedTotal.WithLabelValues(stage).Inc()
	logger.Error().Err(err).Str("stage", stage).Msg("Report generation failed")
	return fmt.Errorf("%s: %w", stage, err)
}

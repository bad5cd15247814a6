package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osvaldoandrade/dossier/internal/catalog"
	"github.com/osvaldoandrade/dossier/internal/pipeline"
	"github.com/osvaldoandrade/dossier/internal/transport"
	"github.com/osvaldoandrade/dossier/pkg/app"
	"github.com/osvaldoandrade/dossier/pkg/config"
	"github.com/osvaldoandrade/dossier/pkg/domain"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// progress drives a terminal bar from orchestrator callbacks.
type progress struct {
	bar *progressbar.ProgressBar
}

func (p *progress) OnState(_ string, s pipeline.State) {
	p.bar.Describe(string(s))
}

func (p *progress) OnSection(_ string, _, _ int, r domain.SectionResult) {
	p.bar.Describe(r.SectionName)
	_ = p.bar.Add(1)
}

func runCmd(ui *ui) *cobra.Command {
	var (
		subject  string
		corpus   string
		workType string
		out      string
		cfgPath  string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pipeline in-process without a queue",
		Long: "Runs one pipeline for a subject in this process using the server configuration " +
			"(DOSSIER_CONFIG_PATH) with in-memory persistence and transport.",
		RunE: func(cmd *cobra.Command, args []string) error {
			wt, err := domain.ParseWorkType(workType)
			if err != nil {
				return err
			}
			if subject == "" {
				return errors.New("subject is required")
			}

			cfg, err := config.LoadConfigOptional(firstNonEmpty(cfgPath, os.Getenv("DOSSIER_CONFIG_PATH")))
			if err != nil {
				return err
			}
			cfg.PersistenceProvider = "memory"
			if cfg.LogLevel == "info" {
				cfg.LogLevel = "warn"
			}

			total := len(catalog.Names(wt))
			prog := &progress{
				bar: progressbar.NewOptions(total,
					progressbar.OptionSetDescription("validating"),
					progressbar.OptionSetWidth(24),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				),
			}
			broker := transport.NewMemory(8)
			application, err := app.NewApplication(cfg,
				app.WithTransport(broker, func(_ context.Context, queue string) (transport.Consumer, error) {
					return broker.Consumer(queue), nil
				}),
				app.WithObserver(prog),
			)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = application.Shutdown(ctx)
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.RequestTimeoutSeconds)*time.Second)
			defer cancel()

			req := domain.WorkRequest{
				SubjectName:     subject,
				CorpusReference: firstNonEmpty(corpus, subject),
				UploadID:        uuid.NewString(),
			}
			rec := application.Orchestrator.Run(ctx, wt, req)
			_ = prog.bar.Finish()
			printRecord(ui, rec)

			if out != "" {
				b, err := json.MarshalIndent(rec, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, b, 0o644); err != nil {
					return err
				}
				fmt.Printf("%s Record written to %s\n", ui.ok("[OK]"), out)
			}
			if rec.Status == domain.StatusFailed {
				return fmt.Errorf("run failed: %s", rec.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject (company) name")
	cmd.Flags().StringVar(&corpus, "corpus", "", "Corpus reference (defaults to the subject)")
	cmd.Flags().StringVar(&workType, "work-type", "report", "Pipeline: report or infographic")
	cmd.Flags().StringVar(&out, "out", "", "Write the result record as JSON to this file")
	cmd.Flags().StringVar(&cfgPath, "config", "", "Server config file (defaults to DOSSIER_CONFIG_PATH)")
	return cmd
}

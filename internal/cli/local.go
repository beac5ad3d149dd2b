package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/bomflow/internal/app"
	"github.com/shaiso/bomflow/internal/config"
	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
)

// NewRunCmd создаёт команду локального прогона конвейера.
//
// Проекты и предложения хранятся в памяти процесса, база знаний — в SQLite.
func NewRunCmd(outputFn func() *Output, kbPathFn func() string) *cobra.Command {
	var bomPath, intakePath, name string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the procurement pipeline locally on a BOM",
		Example: `  bomflow run --bom board.csv --intake board.yaml
  bomflow run --bom board.csv --json > project.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			bom, err := os.Open(bomPath)
			if err != nil {
				return fmt.Errorf("open bom: %w", err)
			}
			defer bom.Close()

			src := flow.Source{Name: name, BOM: bom}
			if intakePath != "" {
				f, err := os.Open(intakePath)
				if err != nil {
					return fmt.Errorf("open intake: %w", err)
				}
				defer f.Close()
				src.Intake = f
			}

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if path := kbPathFn(); path != "" {
				cfg.Knowledge.Path = path
			}

			var onTrace flow.TraceFunc
			if !out.IsJSON() && !quiet {
				onTrace = ConsoleTrace(out.Writer())
			}

			a, err := app.New(cmd.Context(), app.Options{
				Config:   cfg,
				InMemory: true,
				OnTrace:  onTrace,
				Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			if err != nil {
				return err
			}
			defer a.Close()

			project, err := a.Engine.Run(cmd.Context(), src)
			if err != nil {
				return err
			}
			if project.Status == domain.ProjectStatusComplete {
				a.RecordHistory(cmd.Context(), project)
			}

			if out.IsJSON() {
				out.JSON(project)
			} else {
				printOutcome(out, project)
			}
			if project.Status == domain.ProjectStatusFailed {
				return fmt.Errorf("project failed at %s: %s", project.FailedStage, project.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bomPath, "bom", "", "BOM CSV file (required)")
	cmd.Flags().StringVar(&intakePath, "intake", "", "Intake YAML file")
	cmd.Flags().StringVar(&name, "name", "", "Project name (defaults to the intake project name)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the live trace")
	_ = cmd.MarkFlagRequired("bom")

	return cmd
}

func printOutcome(out *Output, p *domain.Project) {
	fmt.Fprintln(out.Writer())
	PrintProject(out, p)
	if p.Report != nil {
		fmt.Fprintln(out.Writer())
		PrintReport(out, p.Report)
	}
}

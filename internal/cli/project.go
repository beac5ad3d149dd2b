package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSubmitCmd создаёт команду подачи BOM через API.
func NewSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var bomPath, intakePath, name string
	var async bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a BOM to the bomflow API",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			bom, err := os.ReadFile(bomPath)
			if err != nil {
				return fmt.Errorf("read bom: %w", err)
			}
			req := SubmitRequest{Name: name, BOMCSV: string(bom)}
			if intakePath != "" {
				intake, err := os.ReadFile(intakePath)
				if err != nil {
					return fmt.Errorf("read intake: %w", err)
				}
				req.IntakeYAML = string(intake)
			}

			if async {
				sub, err := client.SubmitAsync(req)
				if err != nil {
					return err
				}
				if out.IsJSON() {
					out.JSON(sub)
				} else {
					out.Success("Submission queued as project " + sub.SubmissionID)
				}
				return nil
			}

			project, err := client.Submit(req)
			if err != nil {
				return err
			}
			if out.IsJSON() {
				out.JSON(project)
				return nil
			}
			printOutcome(out, project)
			return nil
		},
	}

	cmd.Flags().StringVar(&bomPath, "bom", "", "BOM CSV file (required)")
	cmd.Flags().StringVar(&intakePath, "intake", "", "Intake YAML file")
	cmd.Flags().StringVar(&name, "name", "", "Project name")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the submission instead of waiting for the result")
	_ = cmd.MarkFlagRequired("bom")

	return cmd
}

// NewProjectCmd создаёт группу команд для просмотра проектов.
func NewProjectCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect projects",
	}

	cmd.AddCommand(
		newProjectListCmd(clientFn, outputFn),
		newProjectShowCmd(clientFn, outputFn),
		newProjectTraceCmd(clientFn, outputFn),
		newProjectReportCmd(clientFn, outputFn),
	)

	return cmd
}

func newProjectListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			projects, err := client.ListProjects(ListProjectsOpts{Status: status, Limit: limit})
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STATUS", "ITEMS", "CREATED"}
			rows := make([][]string, len(projects))
			for i, p := range projects {
				st := p.Status
				if p.FailedStage != "" {
					st += " (" + p.FailedStage + ")"
				}
				rows[i] = []string{p.ID, p.Name, st, strconv.Itoa(p.LineItems), p.CreatedAt}
			}

			out.Print(headers, rows, projects)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (intake, enrich, ..., complete, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newProjectShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show PROJECT_ID",
		Short: "Show project state and line items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := clientFn().GetProject(args[0])
			if err != nil {
				return err
			}
			PrintProject(outputFn(), project)
			return nil
		},
	}
}

func newProjectTraceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "trace PROJECT_ID",
		Short: "Show the project audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trace, err := clientFn().GetTrace(args[0])
			if err != nil {
				return err
			}
			PrintTrace(outputFn(), trace.Steps)
			return nil
		},
	}
}

func newProjectReportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "report PROJECT_ID",
		Short: "Show the final decision report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := clientFn().GetReport(args[0])
			if err != nil {
				return err
			}
			PrintReport(outputFn(), report)
			return nil
		},
	}
}

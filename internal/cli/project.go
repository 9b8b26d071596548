package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewProjectCmd создаёт группу команд для управления проектами.
func NewProjectCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(
		newProjectCreateCmd(clientFn, outputFn),
		newProjectListCmd(clientFn, outputFn),
		newProjectShowCmd(clientFn, outputFn),
		newProjectStartCmd(clientFn, outputFn),
		newProjectPauseCmd(clientFn, outputFn),
		newProjectResumeCmd(clientFn, outputFn),
		newProjectStopCmd(clientFn, outputFn),
		newProjectStatusCmd(clientFn, outputFn),
		newProjectLogsCmd(clientFn, outputFn),
		newProjectApproveCmd(clientFn, outputFn),
		newProjectFeedbackCmd(clientFn, outputFn),
		newProjectSkipCmd(clientFn, outputFn),
		newProjectRetryCmd(clientFn, outputFn),
		newProjectApproveSceneCmd(clientFn, outputFn),
	)

	return cmd
}

func newProjectCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pipeline string
	var priority int

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			project, err := client.CreateProject(CreateProjectRequest{
				Name:         args[0],
				PipelineSlug: pipeline,
				Priority:     priority,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Project created: %s", project.ID))
			out.Print(
				[]string{"ID", "NAME", "PIPELINE", "STATUS", "CREATED"},
				[][]string{{project.ID, project.Name, project.PipelineSlug, project.Status, project.CreatedAt}},
				project,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Pipeline slug (required)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Queue priority (higher runs first)")
	cmd.MarkFlagRequired("pipeline")

	return cmd
}

func newProjectListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var pipeline string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			projects, err := client.ListProjects(ListProjectsOpts{
				Status:   status,
				Pipeline: pipeline,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "PIPELINE", "STATUS", "PRIORITY", "CREATED"}
			rows := make([][]string, len(projects))
			for i, p := range projects {
				rows[i] = []string{p.ID, p.Name, p.PipelineSlug, p.Status, strconv.Itoa(p.Priority), p.CreatedAt}
			}

			out.Print(headers, rows, projects)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, QUEUED, RUNNING, PAUSED, REVIEW, FAILED, COMPLETED)")
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Filter by pipeline slug")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newProjectShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show project details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			project, err := client.GetProject(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "NAME", "PIPELINE", "STATUS", "PAUSED", "STARTED", "COMPLETED"},
				[][]string{{
					project.ID, project.Name, project.PipelineSlug, project.Status,
					strconv.FormatBool(project.Paused), project.StartedAt, project.CompletedAt,
				}},
				project,
			)
			return nil
		},
	}
}

func newProjectStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "start ID",
		Short: "Start project execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			project, err := client.StartProject(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Project %s: %s", project.ID, project.Status))
			return nil
		},
	}
}

func newProjectPauseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pause ID",
		Short: "Pause project at the current node boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.PauseProject(args[0]); err != nil {
				return err
			}

			out.Success("Pause requested; the in-flight step finishes first")
			return nil
		},
	}
}

func newProjectResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resume ID",
		Short: "Resume a paused project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.ResumeProject(args[0]); err != nil {
				return err
			}

			out.Success("Project resumed")
			return nil
		},
	}
}

func newProjectStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Stop project scheduling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.StopProject(args[0]); err != nil {
				return err
			}

			out.Success("Project stopped")
			return nil
		},
	}
}

func newProjectStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Show project status with all steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.GetStatus(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("%s [%s] current position: %d",
				status.Project.Name, status.Project.Status, status.CurrentPosition))

			headers := []string{"POS", "NAME", "EXECUTOR", "STATUS", "RETRIES", "ERROR"}
			rows := make([][]string, len(status.Steps))
			for i, s := range status.Steps {
				rows[i] = []string{
					strconv.Itoa(s.Position), s.Name, s.Executor, s.Status,
					strconv.Itoa(s.RetryCount), s.Error,
				}
			}

			out.Print(headers, rows, status)
			return nil
		},
	}
}

// NewLogsCmd — алиас верхнего уровня для `project logs`.
func NewLogsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return newProjectLogsCmd(clientFn, outputFn)
}

func newProjectLogsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs ID",
		Short: "Show project audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			entries, err := client.ListLogs(args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"TIME", "LEVEL", "POS", "SOURCE", "MESSAGE"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.CreatedAt, e.Level, strconv.Itoa(e.Position), e.Source, e.Message}
			}

			out.Print(headers, rows, entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries")

	return cmd
}

func newProjectApproveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "approve ID POSITION",
		Short: "Approve a step waiting at a checkpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			position, err := parsePosition(args[1])
			if err != nil {
				return err
			}

			if err := client.ApproveStep(args[0], position); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Step %d approved", position))
			return nil
		},
	}
}

func newProjectFeedbackCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "feedback ID POSITION TEXT...",
		Short: "Attach reviewer feedback to a step in REVIEW",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			position, err := parsePosition(args[1])
			if err != nil {
				return err
			}

			text := strings.Join(args[2:], " ")
			if err := client.SubmitFeedback(args[0], position, text); err != nil {
				return err
			}

			out.Success("Feedback recorded")
			return nil
		},
	}
}

func newProjectSkipCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "skip ID POSITION",
		Short: "Skip a pending or failed step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			position, err := parsePosition(args[1])
			if err != nil {
				return err
			}

			if err := client.SkipStep(args[0], position); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Step %d skipped", position))
			return nil
		},
	}
}

func newProjectRetryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "retry ID POSITION",
		Short: "Retry a failed step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			position, err := parsePosition(args[1])
			if err != nil {
				return err
			}

			if err := client.RetryStep(args[0], position); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Step %d queued for retry", position))
			return nil
		},
	}
}

func newProjectApproveSceneCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var imagePath string
	var clipOption string

	cmd := &cobra.Command{
		Use:   "approve-scene ID SCENE_ID",
		Short: "Approve a single scene within the step in REVIEW",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			err := client.ApproveScene(args[0], ApproveSceneRequest{
				SceneID:    args[1],
				ImagePath:  imagePath,
				ClipOption: clipOption,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Scene %s approved", args[1]))
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "Selected image path for the scene")
	cmd.Flags().StringVar(&clipOption, "clip", "", "Selected clip option for the scene")

	return cmd
}

// parsePosition парсит позицию шага из аргумента команды.
func parsePosition(raw string) (int, error) {
	position, err := strconv.Atoi(raw)
	if err != nil || position < 1 {
		return 0, fmt.Errorf("invalid step position %q", raw)
	}
	return position, nil
}

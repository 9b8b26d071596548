package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для управления pipelines.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
		newPipelineWireCmd(clientFn, outputFn),
		newPipelineConnectionsCmd(clientFn, outputFn),
	)

	return cmd
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipelines, err := client.ListPipelines()
			if err != nil {
				return err
			}

			headers := []string{"SLUG", "NAME", "VERSION", "ACTIVE", "CREATED"}
			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				rows[i] = []string{p.Slug, p.Name, strconv.Itoa(p.Version), strconv.FormatBool(p.IsActive), p.CreatedAt}
			}

			out.Print(headers, rows, pipelines)
			return nil
		},
	}
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show SLUG",
		Short: "Show pipeline nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipeline, err := client.GetPipeline(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("%s (v%d)", pipeline.Name, pipeline.Version))

			headers := []string{"POS", "STEP", "CHECKPOINT", "ACTIVE"}
			rows := make([][]string, len(pipeline.Nodes))
			for i, n := range pipeline.Nodes {
				rows[i] = []string{
					strconv.Itoa(n.Position), n.StepSlug,
					strconv.FormatBool(n.IsCheckpoint), strconv.FormatBool(n.IsActive),
				}
			}

			out.Print(headers, rows, pipeline)
			return nil
		},
	}
}

func newPipelineWireCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "wire SLUG",
		Short: "Recompute and replace pipeline connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wire, err := client.WirePipeline(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Wired %d connections", len(wire.Connections)))
			for _, warning := range wire.Warnings {
				out.Error(warning)
			}
			if wire.Failed > 0 {
				out.Error(fmt.Sprintf("%d connections failed to persist", wire.Failed))
			}

			if out.jsonMode {
				out.JSON(wire)
			}
			return nil
		},
	}
}

func newPipelineConnectionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "connections SLUG",
		Short: "List pipeline connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			conns, err := client.ListConnections(args[0])
			if err != nil {
				return err
			}

			headers := []string{"SOURCE", "OUTPUT", "TARGET", "INPUT"}
			rows := make([][]string, len(conns))
			for i, c := range conns {
				rows[i] = []string{c.SourceNodeID, c.OutputKey, c.TargetNodeID, c.TargetInputKey}
			}

			out.Print(headers, rows, conns)
			return nil
		},
	}
}

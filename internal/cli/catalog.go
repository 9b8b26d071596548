package cli

import (
	"github.com/spf13/cobra"
)

// NewCatalogCmd создаёт группу команд для каталога шагов.
func NewCatalogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the step catalog",
	}

	cmd.AddCommand(newCatalogListCmd(clientFn, outputFn))

	return cmd
}

func newCatalogListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List step definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			defs, err := client.ListCatalog()
			if err != nil {
				return err
			}

			headers := []string{"SLUG", "NAME", "CATEGORY", "EXECUTOR"}
			rows := make([][]string, len(defs))
			for i, d := range defs {
				rows[i] = []string{d.Slug, d.Name, d.Category, d.Executor}
			}

			out.Print(headers, rows, defs)
			return nil
		},
	}
}

package cli

import (
	"fmt"
	"strconv"

	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newTargetsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the configured query targets with credentials redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			reg, err := registry.New(registry.Config{
				Logger:   log,
				Targets:  cfg.Targets,
				Defaults: cfg.Defaults,
			})
			if err != nil {
				return fmt.Errorf("failed to create registry: %w", err)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetAutoWrapText(false)
			table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
			table.SetAutoFormatHeaders(false)
			table.SetBorder(true)
			table.SetHeader([]string{"ID", "Type", "Name", "Read-only", "URI"})
			for _, t := range reg.List() {
				t = t.Redacted()
				uri := t.URI
				if uri == "" {
					uri = t.ConnString()
				}
				table.Append([]string{t.ID, string(t.Kind), t.Name(), strconv.FormatBool(t.ReadOnly), uri})
			}
			table.Render()
			return nil
		},
	}
}

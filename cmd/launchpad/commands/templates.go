package commands

import (
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/trufnetwork/launchpad-go/core/contractsapi"
)

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in sale templates",
		Long:  "Display the module code, registry hash and sale kind of every template the factory registers at startup.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modules := contractsapi.BuiltinModules()
			codes := make([]string, 0, len(modules))
			for code := range modules {
				codes = append(codes, code)
			}
			sort.Strings(codes)

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Name", "Kind", "Module", "Hash")
			for _, code := range codes {
				template := modules[code]
				_ = table.Append([]string{
					template.Name(),
					template.Kind().String(),
					code,
					contractsapi.ModuleHash([]byte(code)).Hex(),
				})
			}
			return table.Render()
		},
	}
}

package commands

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/trufnetwork/launchpad-go/core/journal"
	"github.com/trufnetwork/launchpad-go/core/metrics"
	"github.com/trufnetwork/launchpad-go/core/scenario"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

type simulateFlags struct {
	journalDir  string
	showMetrics bool
}

func newSimulateCmd() *cobra.Command {
	flags := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a launchpad scenario",
		Long: `Run every step of a scenario file against an in-memory launchpad and print
the executed steps, the deployed sales and the final balances.

Keys of the scenario file can be overridden with LAUNCHPAD_* environment
variables, e.g. LAUNCHPAD_START=1700000000.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.journalDir, "journal", "", "directory of a pebble event journal to append to")
	cmd.Flags().BoolVar(&flags.showMetrics, "metrics", false, "print call outcome counters")
	return cmd
}

func runSimulate(cmd *cobra.Command, path string, flags *simulateFlags) error {
	s, err := scenario.Load(path)
	if err != nil {
		return err
	}

	clock := util.NewManualClock(time.Unix(s.Start, 0))
	opts := []scenario.Option{
		scenario.WithClock(clock),
		scenario.WithLogger(logger.Named("scenario")),
	}
	if flags.journalDir != "" {
		j, err := journal.Open(flags.journalDir, journal.WithClock(clock), journal.WithLogger(logger.Named("journal")))
		if err != nil {
			return err
		}
		defer func() {
			if cerr := j.Close(); cerr != nil {
				logger.Warn("close journal", zap.Error(cerr))
			}
		}()
		opts = append(opts, scenario.WithJournal(j))
	}
	registry := prometheus.NewRegistry()
	if flags.showMetrics {
		collector, err := metrics.NewCollector(registry)
		if err != nil {
			return err
		}
		opts = append(opts, scenario.WithMetrics(collector))
	}

	runner, err := scenario.NewRunner(s, opts...)
	if err != nil {
		return err
	}
	results, runErr := runner.Run(cmd.Context())

	out := cmd.OutOrStdout()
	renderSteps(out, results)
	renderSales(out, runner)
	renderBalances(out, runner)
	if flags.showMetrics {
		if err := renderMetrics(out, registry); err != nil {
			return err
		}
	}
	if runErr != nil {
		return errors.Wrapf(runErr, "scenario %s", path)
	}
	fmt.Fprintf(out, "\n%d steps ok\n", len(results))
	return nil
}

func renderSteps(out io.Writer, results []scenario.StepResult) {
	fmt.Fprintln(out, "STEPS")
	table := tablewriter.NewWriter(out)
	table.Header("#", "Time", "Action", "Detail", "Outcome")
	for _, result := range results {
		_ = table.Append([]string{
			strconv.Itoa(result.Index),
			time.Unix(result.Time, 0).UTC().Format(time.RFC3339),
			result.Action,
			result.Detail,
			result.Outcome,
		})
	}
	_ = table.Render()
}

func renderSales(out io.Writer, runner *scenario.Runner) {
	sales := runner.Sales()
	if len(sales) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSALES")
	table := tablewriter.NewWriter(out)
	table.Header("Name", "Kind", "Address", "Status", "Raised", "Sold", "Claimed", "Vesting End")
	for _, handle := range sales {
		info := handle.Sale.Info()
		vestingEnd := "-"
		if info.VestingEnd != 0 {
			vestingEnd = time.Unix(info.VestingEnd, 0).UTC().Format(time.RFC3339)
		}
		_ = table.Append([]string{
			handle.Name,
			info.Kind.String(),
			info.Address.Hex(),
			handle.Sale.Status().String(),
			runner.FormatAmount(info.PaymentToken, handle.Sale.TotalRaised()),
			runner.FormatAmount(info.SaleToken, handle.Sale.TotalSold()),
			runner.FormatAmount(info.SaleToken, handle.Sale.TotalClaimed()),
			vestingEnd,
		})
	}
	_ = table.Render()
}

func renderBalances(out io.Writer, runner *scenario.Runner) {
	accounts := runner.Accounts()
	if len(accounts) == 0 {
		return
	}
	symbols := runner.Symbols()

	fmt.Fprintln(out, "\nBALANCES")
	table := tablewriter.NewWriter(out)
	header := append([]any{"Account"}, toAny(symbols)...)
	table.Header(header...)
	for _, account := range accounts {
		row := []string{account}
		for _, symbol := range symbols {
			balance, err := runner.Balance(account, symbol)
			if err != nil {
				balance = "?"
			}
			row = append(row, balance)
		}
		_ = table.Append(row)
	}
	_ = table.Render()
}

func renderMetrics(out io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}

	var rows [][]string
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, label.GetName()+"="+label.GetValue())
			}
			rows = append(rows, []string{
				family.GetName(),
				strings.Join(labels, " "),
				strconv.FormatFloat(metric.GetCounter().GetValue(), 'f', -1, 64),
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i][0] != rows[j][0] {
			return rows[i][0] < rows[j][0]
		}
		return rows[i][1] < rows[j][1]
	})

	fmt.Fprintln(out, "\nMETRICS")
	table := tablewriter.NewWriter(out)
	table.Header("Metric", "Labels", "Value")
	for _, row := range rows {
		_ = table.Append(row)
	}
	return table.Render()
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

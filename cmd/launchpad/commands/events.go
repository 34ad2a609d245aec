package commands

import (
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/trufnetwork/launchpad-go/core/journal"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

type eventsFlags struct {
	journalDir string
	source     string
	names      []string
	from       uint64
}

func newEventsCmd() *cobra.Command {
	flags := &eventsFlags{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the events of a journal",
		Long: `Print journaled events in sequence order. Filter by emitting contract with
--source (an address or an account label) and by event name with --name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvents(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.journalDir, "journal", "", "journal directory")
	cmd.Flags().StringVar(&flags.source, "source", "", "only events emitted by this address")
	cmd.Flags().StringSliceVar(&flags.names, "name", nil, "only events with these names")
	cmd.Flags().Uint64Var(&flags.from, "from", 1, "first sequence number")
	_ = cmd.MarkFlagRequired("journal")
	return cmd
}

func runEvents(cmd *cobra.Command, flags *eventsFlags) error {
	j, err := journal.Open(flags.journalDir, journal.WithLogger(logger.Named("journal")))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := j.Close(); cerr != nil {
			logger.Warn("close journal", zap.Error(cerr))
		}
	}()

	var entries []journal.Entry
	if flags.source != "" {
		entries, err = j.EventsOf(util.ResolveAddress(flags.source), flags.names...)
	} else {
		entries, err = j.Events(flags.from)
	}
	if err != nil {
		return errors.Wrap(err, "read journal")
	}

	names := make(map[string]struct{}, len(flags.names))
	for _, name := range flags.names {
		names[name] = struct{}{}
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Seq", "Time", "Source", "Event", "Payload")
	for _, entry := range entries {
		if entry.Seq < flags.from {
			continue
		}
		if _, ok := names[entry.Name]; len(names) > 0 && !ok {
			continue
		}
		_ = table.Append([]string{
			strconv.FormatUint(entry.Seq, 10),
			time.Unix(entry.Time, 0).UTC().Format(time.RFC3339),
			entry.Source.Hex(),
			entry.Name,
			string(entry.Payload),
		})
	}
	return table.Render()
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaykit/relay/cli"
	"github.com/relaykit/relay/pkg/session"
)

func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded agent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}

			records, err := rt.store.List()
			if err != nil {
				return err
			}
			sort.Slice(records, func(i, j int) bool {
				return records[i].StartTime > records[j].StartTime
			})

			if activeOnly, _ := cmd.Flags().GetBool("active"); activeOnly {
				filtered := records[:0]
				for _, record := range records {
					if record.Status == session.StatusActive {
						filtered = append(filtered, record)
					}
				}
				records = filtered
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(records, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if len(records) == 0 {
				fmt.Println("No sessions recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tAGENT\tSTATUS\tSTARTED\tACTIVE\tSYNCED")
			for _, record := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					shortID(record.SessionID),
					record.AgentName,
					record.Status,
					time.UnixMilli(record.StartTime).Format("2006-01-02 15:04"),
					(time.Duration(record.ActiveDurationMs) * time.Millisecond).Round(time.Second),
					syncSummary(record),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Bool("active", false, "Show only active sessions")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func syncSummary(record *session.Record) string {
	if record.Sync == nil {
		return "-"
	}
	return fmt.Sprintf("%d msgs", record.Sync.TotalMessagesSynced)
}

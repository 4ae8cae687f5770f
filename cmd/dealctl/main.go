/*
main.go - dealctl command-line tool

PURPOSE:
  Operator tooling for inspecting a deal database offline: current
  state, event history, chain verification, and the override audit
  trail. Reads the same SQLite database the server writes; never
  mutates it.

COMMANDS:
  dealctl state <deal-id>      Show the deal's current state
  dealctl history <deal-id>    Print the event chain
  dealctl verify <deal-id>     Recompute hashes and report defects
  dealctl audit <deal-id>      Print override records

GLOBAL FLAGS:
  --db      SQLite database path (default: deals.db)
  --format  Output format: text or json (default: text)

EXIT CODES:
  0  success (verify: chain valid)
  1  verify found chain defects
  2  command error (bad flags, missing database)

SEE ALSO:
  - lifecycle/ledger.go: Chain verification walk
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/deal-engine/lifecycle"
	"github.com/warp/deal-engine/store/sqlite"
)

// rootOptions holds global flags shared by all commands.
type rootOptions struct {
	DBPath string
	Format string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "dealctl",
		Short: "Inspect a deal lifecycle database",
		Long:  "Read-only operator tooling for deal state, event history, chain verification, and the override audit trail.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "deals.db", "SQLite database path")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newStateCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))

	return cmd
}

// openStore opens the database read path shared by all subcommands.
func openStore(opts *rootOptions) (*sqlite.Store, error) {
	if _, err := os.Stat(opts.DBPath); err != nil {
		return nil, fmt.Errorf("database %s: %w", opts.DBPath, err)
	}
	return sqlite.New(opts.DBPath)
}

func newStateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "state <deal-id>",
		Short:        "Show the deal's current state",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			id := lifecycle.AggregateID(args[0])
			state, err := store.GetState(context.Background(), id)
			if err != nil {
				return err
			}
			if state == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No state recorded for %s\n", id)
				return nil
			}

			if opts.Format == "json" {
				return printJSON(cmd, state)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Deal:        %s\n", state.AggregateID)
			fmt.Fprintf(out, "State:       %s\n", state.CurrentState)
			fmt.Fprintf(out, "Entered:     %s\n", state.EnteredStateAt.Format("2006-01-02 15:04:05 MST"))
			if state.LastTransitionBy != "" {
				fmt.Fprintf(out, "Last change: by %s at %s\n",
					state.LastTransitionBy,
					state.LastTransitionAt.Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int
	var oldest bool
	var eventType string

	cmd := &cobra.Command{
		Use:          "history <deal-id>",
		Short:        "Print the deal's event chain",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			ledger := lifecycle.NewLedger(store)
			events, err := ledger.History(context.Background(), lifecycle.AggregateID(args[0]), lifecycle.HistoryQuery{
				Limit:     limit,
				Oldest:    oldest,
				EventType: lifecycle.EventType(eventType),
			})
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return printJSON(cmd, events)
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			for _, ev := range events {
				fmt.Fprintf(out, "#%-4d %-24s %s\n", ev.SequenceNumber, ev.Type, ev.RecordedAt.Format("2006-01-02 15:04:05 MST"))
				if ev.IsTransition() {
					fmt.Fprintf(out, "      %s -> %s by %s\n", ev.FromState, ev.ToState, ev.Actor.ID)
				}
				fmt.Fprintf(out, "      hash %s\n", ev.EventHash)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (0 = all)")
	cmd.Flags().BoolVar(&oldest, "asc", false, "oldest first instead of newest first")
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type")
	return cmd
}

func newVerifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "verify <deal-id>",
		Short:        "Recompute the deal's hash chain and report defects",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			ledger := lifecycle.NewLedger(store)
			result, err := ledger.VerifyChain(context.Background(), lifecycle.AggregateID(args[0]))
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				if err := printJSON(cmd, result); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				if result.Valid {
					fmt.Fprintf(out, "Chain valid (%d events)\n", result.EventCount)
				} else {
					fmt.Fprintf(out, "Chain INVALID (%d events, %d defects)\n", result.EventCount, len(result.Errors))
					for _, ce := range result.Errors {
						fmt.Fprintf(out, "  seq %d [%s]: %s\n", ce.SequenceNumber, ce.Kind, ce.Message)
					}
				}
			}

			if !result.Valid {
				// Defects are a finding, not a command error.
				cmd.SilenceErrors = true
				os.Exit(1)
			}
			return nil
		},
	}
}

func newAuditCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "audit <deal-id>",
		Short:        "Print the deal's override records",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.AuditRecords(context.Background(), lifecycle.AggregateID(args[0]))
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return printJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No overrides recorded")
				return nil
			}
			for _, rec := range records {
				fmt.Fprintf(out, "%s  %s -> %s by %s (%s)\n",
					rec.RecordedAt.Format("2006-01-02 15:04:05 MST"),
					rec.FromState, rec.ToState, rec.Actor.ID, rec.Actor.Role)
				fmt.Fprintf(out, "  reason: %s\n", rec.Reason)
				for _, b := range rec.BypassedBlockers {
					fmt.Fprintf(out, "  bypassed blocker: %s (%s)\n", b.Name, b.Reason)
				}
				for _, role := range rec.BypassedApprovals {
					fmt.Fprintf(out, "  bypassed approval: %s\n", role)
				}
			}
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

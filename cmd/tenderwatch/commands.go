package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"TenderWatch/internal/app"
	"TenderWatch/internal/config"
	"TenderWatch/internal/domain"
	"TenderWatch/internal/logging"
)

type rootOptions struct {
	Verbose bool
	Format  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tenderwatch",
		Short:         "Tender digest dispatcher",
		Long:          "Matches harvested tenders against subscriptions and emails each recipient only what they have not seen.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return errors.Newf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDispatch(cmd, opts)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newDispatchCommand(opts))
	cmd.AddCommand(newHarvestCommand(opts))
	cmd.AddCommand(newSubsCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))
	return cmd
}

func buildApp(opts *rootOptions) *app.Application {
	cfg := config.Load()
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	return app.New(cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format, nil))
}

func newDispatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatcher tick (default command)",
		Long: `Run one dispatcher tick: every subscription whose schedule matches the
current minute gets a digest of tenders it has not seen yet.

Meant to be triggered by cron every minute:
  * * * * * tenderwatch dispatch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDispatch(cmd, opts)
		},
	}
}

func runDispatch(cmd *cobra.Command, opts *rootOptions) error {
	application := buildApp(opts)
	defer application.Close()

	report, err := application.Dispatch(cmd.Context())
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	if !report.Skipped && report.Due > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d/%d jobs successful\n", report.Succeeded, report.Due)
	}
	return nil
}

func newHarvestCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Refresh the shared tender snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application := buildApp(opts)
			defer application.Close()

			report, err := application.Harvest(cmd.Context(), force)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			if report.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "harvest skipped: %s\n", report.Reason)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "harvested %d records\n", report.Records)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore snapshot freshness")
	return cmd
}

func newSubsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subs",
		Short: "Manage subscriptions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions with their last status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application := buildApp(opts)
			defer application.Close()

			views, err := application.ListSubscriptions(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), views)
			}
			w := cmd.OutOrStdout()
			for _, v := range views {
				printView(w, v)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one subscription with its status and next run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application := buildApp(opts)
			defer application.Close()

			v, err := application.GetSubscription(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), v)
			}
			printView(cmd.OutOrStdout(), v)
			return nil
		},
	}

	var (
		classes    []string
		recipients []string
		schedule   string
		interval   string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a subscription",
		Example: `  tenderwatch subs add --to ops@example.com --class Works --interval 1hour
  tenderwatch subs add --to a@x.org,b@x.org --schedule "0 8 * * 1-5"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if schedule == "" && interval == "" {
				interval = domain.RepairInterval
			}
			if interval != "" {
				if _, ok := domain.Intervals[interval]; !ok {
					return errors.Newf("unknown interval %q", interval)
				}
			}

			application := buildApp(opts)
			defer application.Close()

			sub, err := application.AddSubscription(cmd.Context(), domain.Subscription{
				Classes:    classes,
				Recipients: recipients,
				Schedule:   schedule,
				Interval:   interval,
			})
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), sub)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", sub.ID, sub.Schedule)
			return nil
		},
	}
	add.Flags().StringSliceVar(&recipients, "to", nil, "recipient addresses (required)")
	add.Flags().StringSliceVar(&classes, "class", nil, "category filter; empty matches everything")
	add.Flags().StringVar(&schedule, "schedule", "", "cron expression")
	add.Flags().StringVar(&interval, "interval", "", "15min|30min|1hour|2hour|6hour|daily")
	_ = add.MarkFlagRequired("to")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a subscription with its status and seen-set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application := buildApp(opts)
			defer application.Close()
			return application.RemoveSubscription(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, show, add, rm)
	return cmd
}

func newLedgerCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the delivery ledger",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show per-recipient delivery counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application := buildApp(opts)
			defer application.Close()

			s, err := application.LedgerStats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d recipients\n", s.TotalRecipients)
			emails := make([]string, 0, len(s.Recipients))
			for email := range s.Recipients {
				emails = append(emails, email)
			}
			sort.Strings(emails)
			for _, email := range emails {
				r := s.Recipients[email]
				fmt.Fprintf(w, "%s\t%d sent\tfirst %s\tlast %s\n", email, r.TendersSent, r.FirstSeen, r.LastSent)
			}
			return nil
		},
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Drop recipients no subscription references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application := buildApp(opts)
			defer application.Close()

			removed, err := application.PruneLedger(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), removed)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d recipients\n", len(removed))
			return nil
		},
	}

	cmd.AddCommand(stats, prune)
	return cmd
}

func printView(w io.Writer, v app.SubscriptionView) {
	next := v.NextRun
	if next == "" {
		next = "-"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\tnext %s\n",
		v.Subscription.ID,
		v.Subscription.Schedule,
		strings.Join(v.Subscription.Recipients, ","),
		strings.Join(v.Subscription.Classes, ","),
		v.Status["status"],
		next)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

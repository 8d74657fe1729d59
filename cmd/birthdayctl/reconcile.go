package main

import (
	"fmt"
	"io"
	"time"

	"birthday-wall/backend/internal/reconcile"
	"birthday-wall/backend/internal/sources"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDedupeCmd() *cobra.Command {
	var rulesPath string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Remove duplicate messages from the live collection",
		Long: `Reconcile the live collection on its own and write the result back.

Nothing is excluded unless a rules file is given. The live collection is
backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := cliLogger(cmd)
			c := apiClient()

			rules := reconcile.Rules{}
			if rulesPath != "" {
				var err error
				if rules, err = reconcile.LoadRules(rulesPath); err != nil {
					return err
				}
			}

			path, live, err := writeBackup(ctx, c, viper.GetString("backup-dir"), time.Now())
			if err != nil {
				return err
			}
			log.Info("Backed up live collection", "path", path, "count", len(live))

			result := reconcile.New(reconcile.Config{Rules: rules}, log).Run([]reconcile.Source{
				{Name: "live", Live: true, Messages: live},
			})
			printReport(cmd.OutOrStdout(), result.Report)

			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "Dry run, nothing written")
				return nil
			}
			if result.Report.Output == len(live) && len(result.Report.Rejected) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No duplicates found")
				return nil
			}
			res, err := c.DirectRestore(ctx, result.Messages)
			if err != nil {
				return fmt.Errorf("failed to write deduplicated collection: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d messages\n", res.RestoredCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "YAML rules file with exclusions.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without writing.")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	var jsonFiles, htmlFiles []string
	var includeLive, apply bool
	var rulesPath, outPath string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge exports and the live collection into one clean list",
		Long: `Merge message sources, most trusted first: the live collection (with
--live), then JSON exports, then HTML exports. The result is written to
--out, or final-messages-<n>.json, for review. --apply also replaces the
live collection after backing it up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := cliLogger(cmd)
			c := apiClient()

			rules := reconcile.DefaultRules()
			if rulesPath != "" {
				var err error
				if rules, err = reconcile.LoadRules(rulesPath); err != nil {
					return err
				}
			}

			var srcs []reconcile.Source
			if includeLive || apply {
				path, live, err := writeBackup(ctx, c, viper.GetString("backup-dir"), time.Now())
				if err != nil {
					return err
				}
				log.Info("Backed up live collection", "path", path, "count", len(live))
				if includeLive {
					srcs = append(srcs, reconcile.Source{Name: "live", Live: true, Messages: live})
				}
			}
			for _, f := range jsonFiles {
				src, err := sources.LoadJSONFile(f)
				if err != nil {
					return err
				}
				srcs = append(srcs, src)
			}
			for _, f := range htmlFiles {
				src, err := sources.LoadHTMLFile(f)
				if err != nil {
					return err
				}
				srcs = append(srcs, src)
			}
			if len(srcs) == 0 {
				return fmt.Errorf("no sources: give --live, --json or --html")
			}

			result := reconcile.New(reconcile.Config{Rules: rules}, log).Run(srcs)
			printReport(cmd.OutOrStdout(), result.Report)

			if outPath == "" {
				var err error
				if outPath, err = nextFreeName(".", "final-messages"); err != nil {
					return err
				}
			}
			if err := sources.WriteJSONFile(outPath, result.Messages); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d messages to %s\n", len(result.Messages), outPath)

			if !apply {
				return nil
			}
			res, err := c.DirectRestore(ctx, result.Messages)
			if err != nil {
				return fmt.Errorf("failed to apply reconciled collection: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d messages to the live collection\n", res.RestoredCount)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&jsonFiles, "json", nil, "JSON export to merge (repeatable).")
	cmd.Flags().StringArrayVar(&htmlFiles, "html", nil, "HTML export to merge (repeatable).")
	cmd.Flags().BoolVar(&includeLive, "live", false, "Merge the live collection first.")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "YAML rules file.")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (default final-messages-<n>.json).")
	cmd.Flags().BoolVar(&apply, "apply", false, "Replace the live collection with the result.")
	return cmd
}

func printReport(w io.Writer, r reconcile.Report) {
	for _, s := range r.Sources {
		fmt.Fprintf(w, "  source %-12s %d messages\n", s.Name, s.Count)
	}
	fmt.Fprintf(w, "Inputs %d, unique %d, duplicates %d, rejected %d, preserved %d, output %d\n",
		r.Inputs, r.Unique, len(r.Duplicates), len(r.Rejected), r.Preserved, r.Output)
	for _, rej := range r.Rejected {
		fmt.Fprintf(w, "  rejected %q (%s)\n", rej.Message.Name, rej.Reason)
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "  warning %s: %s %s\n", d.Kind, d.Name, d.Message)
	}
}

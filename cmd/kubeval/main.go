// Command kubeval lints Kubernetes manifests for missing required fields
// without talking to a cluster.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcuspat/devxplatform/internal/kubeval"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kubeval",
		Short:         "Offline Kubernetes manifest validation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(validateCmd())
	return root
}

func validateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate all YAML manifests under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			opts := kubeval.Options{Strict: strict}
			report, err := kubeval.ValidateDir(dir, opts)
			if err != nil {
				return err
			}
			if len(report.Files) == 0 {
				return fmt.Errorf("no YAML manifest files found in %s", dir)
			}

			printReport(cmd, report, opts)
			if !report.Valid(opts) {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "enable per-kind structural checks and fail on warnings")
	return cmd
}

func printReport(cmd *cobra.Command, report kubeval.Report, opts kubeval.Options) {
	out := cmd.OutOrStdout()
	for _, file := range report.Files {
		if file.Valid(opts) {
			fmt.Fprintf(out, "✓ %s\n", file.Path)
		} else {
			fmt.Fprintf(out, "✗ %s\n", file.Path)
		}
		for _, issue := range file.Errors {
			fmt.Fprintf(out, "    error: %s\n", formatIssue(issue))
		}
		for _, issue := range file.Warnings {
			fmt.Fprintf(out, "    warning: %s\n", formatIssue(issue))
		}
	}
	for _, skipped := range report.Skipped {
		fmt.Fprintf(out, "- %s (kustomization, skipped)\n", skipped)
	}

	valid, invalid := report.Counts(opts)
	errs := 0
	for _, file := range report.Files {
		errs += len(file.Errors)
		if opts.Strict {
			errs += len(file.Warnings)
		}
	}
	fmt.Fprintf(out, "\nSummary:\n")
	fmt.Fprintf(out, "Total files: %d\n", len(report.Files))
	fmt.Fprintf(out, "Valid files: %d\n", valid)
	fmt.Fprintf(out, "Invalid files: %d\n", invalid)
	fmt.Fprintf(out, "Total errors: %d\n", errs)
	if len(report.Files) > 0 {
		fmt.Fprintf(out, "Success rate: %.1f%%\n", float64(valid)/float64(len(report.Files))*100)
	}
}

func formatIssue(issue kubeval.Issue) string {
	if issue.Field != "" {
		return fmt.Sprintf("document %d: %s: %s", issue.Doc+1, issue.Field, issue.Message)
	}
	return fmt.Sprintf("document %d: %s", issue.Doc+1, issue.Message)
}

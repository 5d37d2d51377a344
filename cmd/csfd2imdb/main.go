package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elonfeng/csfd2imdb/pkg/csfd"
)

var (
	cfgFile string
	userID  int
	verbose bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "csfd2imdb",
		Short:        "Export ČSFD ratings and reviews and replay the ratings on IMDb",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().IntVar(&userID, "user", 0, "ČSFD user id (overrides config and CSFD_USER_ID)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(exportCmd("ratings", "Export ratings with detail-page attributes", csfd.RatingsSection))
	root.AddCommand(exportCmd("reviews", "Export reviews with detail-page attributes", csfd.ReviewsSection))
	root.AddCommand(linksCmd())
	root.AddCommand(rateCmd())
	root.AddCommand(rateRetryCmd())
	root.AddCommand(checkCookieCmd())
	root.AddCommand(historyCmd())

	return root
}

func exportCmd(use, short string, section csfd.Section) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(section, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run report as JSON")
	return cmd
}

func linksCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "links",
		Short: "Resolve IMDb ids for exported ratings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinks(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run report as JSON")
	return cmd
}

func rateCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rate",
		Short: "Submit resolved ratings to IMDb",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRate(false, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run report as JSON")
	return cmd
}

func rateRetryCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rate-retry",
		Short: "Resubmit the ratings that failed in the last rate run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRate(true, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run report as JSON")
	return cmd
}

func checkCookieCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-cookie",
		Short: "Check that the ČSFD session cookie is still valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckCookie()
		},
	}
}

func historyCmd() *cobra.Command {
	var (
		jsonOutput bool
		action     string
		limit      int
		runID      int64
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs, or the item events of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(jsonOutput, action, limit, runID)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&action, "action", "", "only runs of this action")
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to show")
	cmd.Flags().Int64Var(&runID, "run", 0, "show the events of this run")
	return cmd
}

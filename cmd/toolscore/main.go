package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "toolscore",
		Short:         "Score third-party tools from internal and external quality signals",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(collectCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(mergeCmd())
	root.AddCommand(recommendCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(importCmd())
	root.AddCommand(weightsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func collectCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run external source collectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), sources)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific sources to collect (e.g., tranco,github)")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute internal, external and hybrid scores and trends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context())
		},
	}
}

func mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Approve voted suggestions and merge them into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.Context())
		},
	}
}

func recommendCmd() *cobra.Command {
	var (
		purpose, role, budget, korean string
		jsonOutput                    bool
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend tools for a purpose, role, budget and language",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecommend(cmd.Context(), purpose, role, budget, korean, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&purpose, "purpose", "", "purpose slug (e.g., blogging)")
	cmd.Flags().StringVar(&role, "role", "", "role slug (e.g., marketer)")
	cmd.Flags().StringVar(&budget, "budget", "any", "free, under10 or any")
	cmd.Flags().StringVar(&korean, "korean", "any", "required or any")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last run of every source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <seed.yaml>",
		Short: "Import categories, tools, mappings and weights from a seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0])
		},
	}
}

func weightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show the effective scoring weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeights(cmd.Context())
		},
	}

	var category string
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a scoring weight, globally or for one category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetWeight(cmd.Context(), args[0], args[1], category)
		},
	}
	set.Flags().StringVar(&category, "category", "", "category slug (default: global)")

	cmd.AddCommand(set)
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

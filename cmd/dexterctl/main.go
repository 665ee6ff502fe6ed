package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var version = "v0.1.0" // Overwritten at build time

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions 为所有子命令共享的参数。
type globalOptions struct {
	server     string
	configPath string
	output     string
	subagents  bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "dexterctl",
		Short: "Evaluate and optimize Ethereum transactions",
		Long: `dexterctl checks Ethereum transactions against safety and efficiency rules
and rewrites failing ones. It runs the evaluator locally by default, or talks to
a dexterd server when --server is given.`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", os.Getenv("DEXTER_SERVER"), "dexterd base URL; empty runs locally")
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv("DEXTER_CONFIG"), "Config file for local runs")
	flags.StringVarP(&opts.output, "output", "o", "human", "Output format (human, json, yaml)")
	flags.BoolVar(&opts.subagents, "subagents", true, "Run subagent analysis in local runs")

	root.AddCommand(
		newEvaluateCmd(opts),
		newOptimizeCmd(opts),
		newJobCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dexterctl version %s\n", version)
		},
	}
}

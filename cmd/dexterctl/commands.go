package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"Dexter-Chain/internal/agent"
	"Dexter-Chain/internal/config"
	"Dexter-Chain/pkg/logger"
	"Dexter-Chain/sdk/go/dexter"
)

func newEvaluateCmd(opts *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "evaluate -f REQUEST",
		Short: "Run one evaluation round without optimization",
		Long: `Evaluate a batch of transactions against an objective.

Examples:
  # Evaluate locally with built-in thresholds
  dexterctl evaluate -f swap.yaml

  # Evaluate through a running dexterd
  dexterctl evaluate -f swap.json --server http://localhost:8080 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readRequest(file)
			if err != nil {
				return err
			}
			var result dexter.BatchResult
			err = withSpinner(cmd, " Evaluating transactions...", func(ctx context.Context) error {
				if opts.server != "" {
					return remoteCall(opts, raw, func(c *dexter.Client, req dexter.Request) (err error) {
						result, err = c.Evaluate(ctx, req)
						return err
					})
				}
				return localCall(ctx, opts, raw, func(ag *agent.Agent, req agent.Request) error {
					batch, err := ag.Evaluate(ctx, req)
					if err != nil {
						return err
					}
					return convert(batch, &result)
				})
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, result, func(p *printer) { p.batch(result) })
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Request file (JSON or YAML); - reads stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newOptimizeCmd(opts *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "optimize -f REQUEST",
		Short: "Evaluate and iteratively rewrite failing transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readRequest(file)
			if err != nil {
				return err
			}
			var outcome dexter.Outcome
			err = withSpinner(cmd, " Optimizing transactions...", func(ctx context.Context) error {
				if opts.server != "" {
					return remoteCall(opts, raw, func(c *dexter.Client, req dexter.Request) (err error) {
						outcome, err = c.Optimize(ctx, req)
						return err
					})
				}
				return localCall(ctx, opts, raw, func(ag *agent.Agent, req agent.Request) error {
					out, err := ag.Execute(ctx, req)
					if err != nil {
						return err
					}
					return convert(out, &outcome)
				})
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, outcome, func(p *printer) { p.outcome(outcome) })
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Request file (JSON or YAML); - reads stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newJobCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage asynchronous optimization jobs on a dexterd server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.server == "" {
				return fmt.Errorf("job commands require --server or DEXTER_SERVER")
			}
			return nil
		},
	}

	var (
		file string
		id   string
		wait bool
	)
	submit := &cobra.Command{
		Use:   "submit -f REQUEST",
		Short: "Queue an optimization job",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readRequest(file)
			if err != nil {
				return err
			}
			var job dexter.Job
			err = withSpinner(cmd, " Submitting job...", func(ctx context.Context) error {
				return remoteCall(opts, raw, func(c *dexter.Client, req dexter.Request) (err error) {
					job, err = c.SubmitJob(ctx, id, req)
					if err != nil || !wait {
						return err
					}
					job, err = c.WaitJob(ctx, job.ID, 0)
					return err
				})
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, job, func(p *printer) { p.job(job) })
		},
	}
	submit.Flags().StringVarP(&file, "file", "f", "", "Request file (JSON or YAML); - reads stdin")
	submit.Flags().StringVar(&id, "id", "", "Idempotency key used as the job id")
	submit.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	_ = submit.MarkFlagRequired("file")

	get := &cobra.Command{
		Use:   "get JOB_ID",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dexter.NewClient(opts.server, nil)
			if err != nil {
				return err
			}
			job, err := client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, job, func(p *printer) { p.job(job) })
		},
	}

	cmd.AddCommand(submit, get)
	return cmd
}

// readRequest 读取 JSON 或 YAML 请求文件，统一转换为 JSON。
func readRequest(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") || json.Valid(data) {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	return out, nil
}

func remoteCall(opts *globalOptions, raw []byte, fn func(*dexter.Client, dexter.Request) error) error {
	client, err := dexter.NewClient(opts.server, nil)
	if err != nil {
		return err
	}
	var req dexter.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return fn(client, req)
}

func localCall(ctx context.Context, opts *globalOptions, raw []byte, fn func(*agent.Agent, agent.Request) error) error {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	subagents := opts.subagents
	cfg.Evaluator.EnableSubagents = &subagents
	if err := logger.Init(logger.Config{Level: "warn", Format: "text", OutputPaths: []string{"stderr"}}); err != nil {
		return err
	}
	rt, err := agent.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	var req agent.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return fn(rt.Agent, req)
}

// convert 通过 JSON 将内部结果转换为 SDK 类型，保证本地与远程输出一致。
func convert(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func withSpinner(cmd *cobra.Command, suffix string, fn func(ctx context.Context) error) error {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond)
	s.Suffix = suffix
	s.Writer = cmd.ErrOrStderr()
	s.Start()
	defer s.Stop()

	return fn(cmd.Context())
}

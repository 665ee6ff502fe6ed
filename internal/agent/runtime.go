package agent

import (
	"context"
	"log/slog"

	"Dexter-Chain/internal/config"
	xerrors "Dexter-Chain/internal/errors"
	"Dexter-Chain/internal/evaluator"
	"Dexter-Chain/internal/optimizer"
	"Dexter-Chain/internal/rules"
	"Dexter-Chain/internal/subagent"
	"Dexter-Chain/internal/web3"
	"Dexter-Chain/internal/web3/provider"
	"Dexter-Chain/pkg/logger"
)

// Runtime 聚合根据配置构造出的 Agent 及其依赖，供 dexterd 与 dexterctl 共用。
type Runtime struct {
	Agent       *Agent
	Evaluator   *evaluator.Evaluator
	Coordinator *subagent.Coordinator
	// Chain 为 nil 表示未配置节点，评估只使用请求中携带的模拟结果。
	Chain    web3.Client
	registry *provider.Registry
}

// NewRuntime 按配置加载规则、子代理、链客户端并组装 Agent。
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log := logger.Named("runtime")

	thresholds, err := rules.LoadThresholds(cfg.Evaluator.RulesFile)
	if err != nil {
		return nil, err
	}
	baseFee, err := cfg.Evaluator.DefaultBaseFee()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析默认 base fee 失败")
	}

	rt := &Runtime{}
	evOpts := []evaluator.Option{evaluator.WithConcurrency(cfg.Evaluator.SubagentConcurrency)}
	if cfg.Evaluator.SubagentsEnabled() {
		rt.Coordinator = subagent.NewCoordinator(subagent.WithTimeout(cfg.Evaluator.SubagentTimeout()))
		evOpts = append(evOpts, evaluator.WithCoordinator(rt.Coordinator, cfg.Evaluator.Agents...))
	}
	rt.Evaluator = evaluator.New(rules.NewEngine(thresholds), evOpts...)

	agentOpts := []Option{
		WithMaxIterations(cfg.Evaluator.MaxIterations),
		WithDefaultBaseFee(baseFee),
	}
	if cfg.Web3.Enabled() {
		registry, err := provider.NewRegistry(ctx, cfg.Web3)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化链客户端失败")
		}
		client, err := registry.DefaultClient()
		if err != nil {
			registry.Close()
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "获取默认链失败")
		}
		rt.registry = registry
		rt.Chain = client
		agentOpts = append(agentOpts, WithSimulator(client), WithBaseFeeOracle(client))
		log.Info("已启用链上模拟", slog.Any("chains", registry.Chains()))
	}

	rt.Agent = New(rt.Evaluator, optimizer.New(), agentOpts...)
	log.Debug("运行时初始化完成",
		slog.Bool("subagents", rt.Coordinator != nil),
		slog.Int("max_iterations", cfg.Evaluator.MaxIterations),
	)
	return rt, nil
}

// Close 释放链客户端。
func (r *Runtime) Close() {
	if r != nil && r.registry != nil {
		r.registry.Close()
	}
}

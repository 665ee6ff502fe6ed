package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"Dexter-Chain/internal/rules"
	"Dexter-Chain/internal/subagent"
	"Dexter-Chain/internal/validation"
	"Dexter-Chain/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	erc20TransferSelector = "0xa9059cbb"
	// assetDeviationTolerance 是资产变化允许的相对偏差。
	assetDeviationTolerance = 0.02
	// splitBatchTip 在批次中多于一笔交易无效时追加。
	splitBatchTip = "Consider breaking this into smaller, simpler transactions"
	// MEVVulnerableMessage 是评估器给出的 MEV 风险结论，优化器据此加入防护。
	MEVVulnerableMessage = "Transaction is MEV vulnerable: swap above 1 ETH without protection"
)

// Evaluator 组合规则引擎与（可选的）子代理。
type Evaluator struct {
	engine      *rules.Engine
	coordinator *subagent.Coordinator
	agents      []string
	concurrency int
	logger      *slog.Logger
}

// Option 定义 Evaluator 的可选配置。
type Option func(*Evaluator)

// WithCoordinator 启用子代理分析，agents 为空时运行全部子代理。
func WithCoordinator(c *subagent.Coordinator, agents ...string) Option {
	return func(e *Evaluator) {
		e.coordinator = c
		e.agents = append([]string(nil), agents...)
	}
}

// WithConcurrency 限制批次内同时进行子代理分析的交易数。
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger 指定日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

const defaultConcurrency = 4

// New 创建评估器，engine 为 nil 时使用默认阈值。
func New(engine *rules.Engine, opts ...Option) *Evaluator {
	if engine == nil {
		engine = rules.NewEngine(rules.DefaultThresholds())
	}
	e := &Evaluator{engine: engine, concurrency: defaultConcurrency}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.logger == nil {
		e.logger = logger.Named("evaluator")
	}
	return e
}

// Engine 返回评估器使用的规则引擎。
func (e *Evaluator) Engine() *rules.Engine {
	return e.engine
}

// SubagentsEnabled 判断是否配置了子代理。
func (e *Evaluator) SubagentsEnabled() bool {
	return e.coordinator != nil
}

// DetermineTransactionType 根据 calldata 与目标推断交易类型。
func DetermineTransactionType(tx validation.Transaction, objective validation.Objective) rules.TxType {
	if tx.IsPlainTransfer() {
		return rules.TxETHTransfer
	}
	if tx.Selector() == erc20TransferSelector {
		return rules.TxERC20Transfer
	}
	if objective.IsSwap() {
		switch {
		case objective.TypeContains("multi") || objective.TypeContains("triangular"):
			return rules.TxMultiHopSwap
		case objective.TypeContains("complex"):
			return rules.TxComplexSwap
		default:
			return rules.TxSimpleSwap
		}
	}
	return rules.TxComplexSwap
}

// EvaluateTransaction 依次执行 gas、金额、目标对齐、模拟与安全检查。
func (e *Evaluator) EvaluateTransaction(tx validation.Transaction, objective validation.Objective, sim *validation.SimulationResult) (bool, []validation.Result) {
	var results []validation.Result
	txType := DetermineTransactionType(tx, objective)

	if _, ok := tx.GasLimit(); ok {
		results = append(results, e.engine.ValidateGas(tx, txType))
	}
	if value := tx.ValueWei(); value.Sign() > 0 {
		results = append(results, e.engine.ValidateValue(value, true))
	}

	results = append(results, e.objectiveAlignment(tx, objective)...)

	if !sim.Empty() {
		results = append(results, validateSimulation(sim, objective)...)
	}

	results = append(results, e.security(tx, objective)...)
	results = append(results, e.efficiency(objective)...)

	return !validation.HasCriticalFailure(results), results
}

func (e *Evaluator) objectiveAlignment(tx validation.Transaction, objective validation.Objective) []validation.Result {
	var results []validation.Result
	if objective.TargetAddress != "" && !validation.SameAddress(tx.To, objective.TargetAddress) {
		results = append(results, validation.Fail(
			validation.CategoryCorrectness,
			validation.SeverityCritical,
			"Transaction target doesn't match objective target",
			"Ensure transaction is sent to the correct contract",
		))
	}
	if objective.HasOutputBounds() {
		results = append(results, e.engine.ValidateSlippage(objective.ExpectedOutput.Int(), objective.MinOutput.Int()))
	}
	return results
}

func validateSimulation(sim *validation.SimulationResult, objective validation.Objective) []validation.Result {
	if !sim.Success {
		reason := sim.Error
		if reason == "" {
			reason = "Unknown error"
		}
		return []validation.Result{validation.Fail(
			validation.CategoryCorrectness,
			validation.SeverityCritical,
			"Transaction simulation failed: "+reason,
			"Review transaction parameters and ensure sufficient balances",
		)}
	}
	if sim.AssetChanges == nil {
		return nil
	}

	assets := make([]string, 0, len(objective.ExpectedChanges))
	for asset := range objective.ExpectedChanges {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	var results []validation.Result
	for _, asset := range assets {
		expected := objective.ExpectedChanges[asset]
		actual := sim.AssetChanges[asset]
		if !deviates(actual, expected) {
			continue
		}
		results = append(results, validation.Fail(
			validation.CategoryCorrectness,
			validation.SeverityWarning,
			fmt.Sprintf("Asset %s change %s differs from expected %s", asset, formatFloat(actual), formatFloat(expected)),
			"Adjust transaction parameters to achieve desired asset changes",
		))
	}
	return results
}

// deviates 判断实际变化与期望的相对偏差是否超过容忍度；期望为零时任何非零变化都算偏离。
func deviates(actual, expected float64) bool {
	if expected == 0 {
		return actual != 0
	}
	return math.Abs(actual-expected)/math.Abs(expected) > assetDeviationTolerance
}

func (e *Evaluator) security(tx validation.Transaction, objective validation.Objective) []validation.Result {
	var results []validation.Result
	if objective.IsSwap() && tx.ValueWei().Cmp(rules.OneETH) > 0 && !objective.MEVProtection {
		results = append(results, validation.Fail(
			validation.CategorySecurity,
			validation.SeverityWarning,
			MEVVulnerableMessage,
			"Consider using Flashbots or implementing commit-reveal pattern",
		))
	}
	if objective.Protocol != "" {
		results = append(results, e.engine.ValidateProtocol(objective.Protocol))
	}
	return results
}

// efficiency 仅在目标携带路由信息时执行。
func (e *Evaluator) efficiency(objective validation.Objective) []validation.Result {
	var results []validation.Result
	if len(objective.Path) > 0 {
		results = append(results, e.engine.PathFindings(objective.Path, objective.DirectPathAvailable)...)
	}
	if objective.PriceImpactPercent != nil {
		results = append(results, e.engine.ValidatePriceImpact(*objective.PriceImpactPercent))
	}
	return results
}

// EvaluateBatch 独立评估每笔交易并汇总。sims 可以比 txs 短，缺失部分视为无模拟结果。
func (e *Evaluator) EvaluateBatch(txs []validation.Transaction, objective validation.Objective, sims []*validation.SimulationResult) validation.BatchResult {
	results := make([]validation.TransactionResult, len(txs))
	for i, tx := range txs {
		valid, findings := e.EvaluateTransaction(tx, objective, simulationAt(sims, i))
		results[i] = validation.TransactionResult{Index: i, Valid: valid, Results: findings}
	}
	return Summarize(results)
}

// EvaluateBatchWithSubagents 在规则评估之后并发运行子代理，将子代理结论追加到
// 每笔交易的结果中并重新计算有效性。未配置子代理时等同于 EvaluateBatch。
func (e *Evaluator) EvaluateBatchWithSubagents(ctx context.Context, txs []validation.Transaction, objective validation.Objective, sims []*validation.SimulationResult, actx subagent.Context) (validation.BatchResult, error) {
	batch := e.EvaluateBatch(txs, objective, sims)
	if e.coordinator == nil || len(txs) == 0 {
		return batch, nil
	}

	extra := make([][]validation.Result, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range txs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			byAgent := e.coordinator.Analyze(gctx, txs[i], objective, actx, e.agents...)
			extra[i] = e.coordinator.Flatten(byAgent)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return validation.BatchResult{}, err
	}

	merged := make([]validation.TransactionResult, len(batch.TransactionResults))
	for i, tr := range batch.TransactionResults {
		findings := append(append([]validation.Result(nil), tr.Results...), extra[i]...)
		merged[i] = validation.TransactionResult{
			Index:   tr.Index,
			Valid:   !validation.HasCriticalFailure(findings),
			Results: findings,
		}
	}
	out := Summarize(merged)
	e.logger.Debug("子代理分析完成", slog.Int("transactions", len(txs)), slog.Bool("all_valid", out.AllValid))
	return out, nil
}

// Summarize 根据逐笔结果生成批次有效性、去重后的优化建议与摘要。
func Summarize(results []validation.TransactionResult) validation.BatchResult {
	allValid := true
	invalid := 0
	for _, tr := range results {
		if !tr.Valid {
			allValid = false
			invalid++
		}
	}

	tips := make([]string, 0)
	seen := make(map[string]struct{})
	for _, tr := range results {
		for _, r := range tr.Results {
			if r.Passed || r.OptimizationTip == "" {
				continue
			}
			if _, dup := seen[r.OptimizationTip]; dup {
				continue
			}
			seen[r.OptimizationTip] = struct{}{}
			tips = append(tips, r.OptimizationTip)
		}
	}
	if invalid > 1 {
		tips = append(tips, splitBatchTip)
	}

	return validation.BatchResult{
		AllValid:           allValid,
		TransactionResults: results,
		OptimizationTips:   tips,
		Summary:            summary(len(results), len(results)-invalid),
	}
}

func summary(total, valid int) string {
	switch {
	case valid == total:
		return fmt.Sprintf("All %d transactions passed validation", total)
	case valid == 0:
		return fmt.Sprintf("All %d transactions failed validation", total)
	default:
		return fmt.Sprintf("%d of %d transactions passed validation", valid, total)
	}
}

func simulationAt(sims []*validation.SimulationResult, i int) *validation.SimulationResult {
	if i < len(sims) {
		return sims[i]
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	xerrors "Dexter-Chain/internal/errors"
	"Dexter-Chain/internal/evaluator"
	"Dexter-Chain/internal/optimizer"
	"Dexter-Chain/internal/subagent"
	"Dexter-Chain/internal/validation"
	"Dexter-Chain/internal/web3"
	"Dexter-Chain/pkg/logger"
)

// RequestContext 描述评估时的链上环境，字段均可选。
type RequestContext struct {
	CurrentBaseFee *validation.Amount `json:"current_base_fee,omitempty" yaml:"current_base_fee,omitempty"`
}

// Request 描述一次评估或优化请求。
type Request struct {
	Transactions      []validation.Transaction       `json:"transactions" yaml:"transactions"`
	Objective         validation.Objective           `json:"objective" yaml:"objective"`
	SimulationResults []*validation.SimulationResult `json:"simulation_results,omitempty" yaml:"simulation_results,omitempty"`
	Context           RequestContext                 `json:"context" yaml:"context"`
}

// Round 记录一轮评估以及评估前应用的优化。第 0 轮没有优化。
type Round struct {
	Iteration  int                    `json:"iteration" yaml:"iteration"`
	Applied    []string               `json:"applied_optimizations" yaml:"applied_optimizations"`
	Evaluation validation.BatchResult `json:"evaluation" yaml:"evaluation"`
}

// Outcome 汇总闭环的最终结果。
type Outcome struct {
	Transactions    []validation.Transaction `json:"transactions" yaml:"transactions"`
	Rounds          []Round                  `json:"rounds" yaml:"rounds"`
	FinalEvaluation validation.BatchResult   `json:"final_evaluation" yaml:"final_evaluation"`
	Valid           bool                     `json:"valid" yaml:"valid"`
	Iterations      int                      `json:"iterations" yaml:"iterations"`
	Reports         []optimizer.Report       `json:"reports" yaml:"reports"`
	Suggestions     []optimizer.Suggestion   `json:"suggestions" yaml:"suggestions"`
}

// Agent 协调模拟、评估与优化，是系统的业务核心。
type Agent struct {
	evaluator      *evaluator.Evaluator
	optimizer      *optimizer.Optimizer
	simulator      web3.Simulator
	oracle         web3.BaseFeeOracle
	maxIterations  int
	defaultBaseFee *big.Int
	logger         *slog.Logger
	audit          *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// defaultMaxIterations 是默认的最大优化轮次。
const defaultMaxIterations = 3

// WithSimulator 配置链上模拟器；配置后请求中携带的模拟结果将被忽略。
func WithSimulator(sim web3.Simulator) Option {
	return func(a *Agent) {
		a.simulator = sim
	}
}

// WithBaseFeeOracle 配置 base fee 来源，请求未携带 base fee 时使用。
func WithBaseFeeOracle(oracle web3.BaseFeeOracle) Option {
	return func(a *Agent) {
		a.oracle = oracle
	}
}

// WithMaxIterations 设置最大优化轮次。
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		a.maxIterations = n
	}
}

// WithDefaultBaseFee 设置兜底的 base fee。
func WithDefaultBaseFee(fee *big.Int) Option {
	return func(a *Agent) {
		if fee != nil {
			a.defaultBaseFee = new(big.Int).Set(fee)
		}
	}
}

// WithLogger 替换运行日志。
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New 创建一个 Agent。ev 与 opt 为 nil 时使用默认配置。
func New(ev *evaluator.Evaluator, opt *optimizer.Optimizer, opts ...Option) *Agent {
	if ev == nil {
		ev = evaluator.New(nil)
	}
	if opt == nil {
		opt = optimizer.New()
	}
	ag := &Agent{
		evaluator:      ev,
		optimizer:      opt,
		maxIterations:  defaultMaxIterations,
		defaultBaseFee: new(big.Int).Set(subagent.DefaultBaseFee),
		logger:         logger.Named("agent"),
		audit:          logger.Audit(),
	}
	for _, o := range opts {
		if o != nil {
			o(ag)
		}
	}
	if ag.maxIterations <= 0 {
		ag.maxIterations = defaultMaxIterations
	}
	return ag
}

// Evaluator 返回 Agent 使用的评估器。
func (a *Agent) Evaluator() *evaluator.Evaluator {
	return a.evaluator
}

// Optimizer 返回 Agent 使用的优化器。
func (a *Agent) Optimizer() *optimizer.Optimizer {
	return a.optimizer
}

// Evaluate 执行一轮模拟与评估，不做任何优化。
func (a *Agent) Evaluate(ctx context.Context, req Request) (validation.BatchResult, error) {
	if err := ValidateRequest(req); err != nil {
		return validation.BatchResult{}, err
	}
	actx := a.analysisContext(ctx, req.Context)
	batch, err := a.evaluate(ctx, 0, req.Transactions, req, actx)
	if err != nil {
		return validation.BatchResult{}, err
	}
	a.audit.Info("transaction batch evaluated",
		slog.Int("transactions", len(req.Transactions)),
		slog.Bool("all_valid", batch.AllValid),
		slog.String("summary", batch.Summary),
	)
	return batch, nil
}

// Execute 运行评估-优化闭环：每轮只优化无效交易，直到全部有效或达到最大轮次。
func (a *Agent) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	actx := a.analysisContext(ctx, req.Context)

	original := cloneAll(req.Transactions)
	current := cloneAll(req.Transactions)

	first, err := a.evaluate(ctx, 0, current, req, actx)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Rounds: []Round{{Iteration: 0, Applied: []string{}, Evaluation: first}}}
	applied := make([][]string, len(current))
	last := first

	for !last.AllValid && outcome.Iterations < a.maxIterations {
		next := append([]validation.Transaction(nil), current...)
		roundApplied := make([]string, 0)
		for _, i := range last.InvalidIndexes() {
			optimized, changes := a.optimizer.OptimizeTransaction(current[i], last.TransactionResults[i].Results, req.Objective)
			next[i] = optimized
			applied[i] = append(applied[i], changes...)
			roundApplied = append(roundApplied, changes...)
		}
		current = next
		outcome.Iterations++

		last, err = a.evaluate(ctx, outcome.Iterations, current, req, actx)
		if err != nil {
			return nil, err
		}
		outcome.Rounds = append(outcome.Rounds, Round{Iteration: outcome.Iterations, Applied: roundApplied, Evaluation: last})
		a.logger.Debug("优化轮次完成",
			slog.Int("iteration", outcome.Iterations),
			slog.Int("applied", len(roundApplied)),
			slog.Bool("all_valid", last.AllValid),
		)
	}

	outcome.Transactions = current
	outcome.FinalEvaluation = last
	outcome.Valid = last.AllValid
	outcome.Reports = make([]optimizer.Report, len(current))
	var remaining []validation.Result
	for i := range current {
		before := first.TransactionResults[i].Results
		after := last.TransactionResults[i].Results
		if outcome.Iterations == 0 {
			after = nil
		}
		outcome.Reports[i] = optimizer.GenerateReport(original[i], current[i], applied[i], before, after)
		if !last.TransactionResults[i].Valid {
			remaining = append(remaining, validation.Failed(last.TransactionResults[i].Results)...)
		}
	}
	outcome.Suggestions = optimizer.SuggestAlternatives(req.Objective, remaining)

	attrs := []any{
		slog.Int("transactions", len(current)),
		slog.Int("iterations", outcome.Iterations),
		slog.Bool("valid", outcome.Valid),
		slog.Int("unresolved_findings", last.FailedCount()),
		slog.String("summary", last.Summary),
	}
	if !outcome.Valid {
		attrs = append(attrs, slog.String("code", string(xerrors.CodeOptimizationExhausted)))
	}
	a.audit.Info("transaction refinement finished", attrs...)
	return outcome, nil
}

func (a *Agent) evaluate(ctx context.Context, round int, txs []validation.Transaction, req Request, actx subagent.Context) (validation.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return validation.BatchResult{}, wrapContextErr(err)
	}
	sims := a.simulate(ctx, round, txs, req.SimulationResults)
	batch, err := a.evaluator.EvaluateBatchWithSubagents(ctx, txs, req.Objective, sims, actx)
	if err != nil {
		return validation.BatchResult{}, wrapContextErr(err)
	}
	return batch, nil
}

// simulate 在配置了模拟器时逐笔模拟，节点错误记为失败的模拟结果。
// 没有模拟器时，调用方提供的结果只描述原始交易，仅用于第 0 轮。
func (a *Agent) simulate(ctx context.Context, round int, txs []validation.Transaction, provided []*validation.SimulationResult) []*validation.SimulationResult {
	if a.simulator == nil {
		if round > 0 {
			return nil
		}
		return provided
	}
	sims := make([]*validation.SimulationResult, len(txs))
	for i, tx := range txs {
		sim, err := a.simulator.Simulate(ctx, tx)
		if err != nil {
			a.logger.Warn("交易模拟失败", slog.Int("index", i), slog.String("code", string(xerrors.CodeSimulationFailure)), slog.Any("error", err))
			sim = validation.SimulationFailed(err.Error())
		}
		sims[i] = sim
	}
	return sims
}

// analysisContext 按请求、预言机、默认值的顺序确定 base fee。
func (a *Agent) analysisContext(ctx context.Context, rc RequestContext) subagent.Context {
	if rc.CurrentBaseFee != nil {
		return subagent.Context{CurrentBaseFee: rc.CurrentBaseFee.Int()}
	}
	if a.oracle != nil {
		fee, err := a.oracle.BaseFee(ctx)
		if err == nil && fee != nil {
			return subagent.Context{CurrentBaseFee: fee}
		}
		a.logger.Warn("获取 base fee 失败，使用默认值", slog.Any("error", err))
	}
	return subagent.Context{CurrentBaseFee: new(big.Int).Set(a.defaultBaseFee)}
}

// ValidateRequest 检查请求能否进入评估闭环：交易非空、calldata 为合法十六进制、
// 模拟结果不多于交易。
func ValidateRequest(req Request) error {
	if len(req.Transactions) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "交易列表不能为空")
	}
	for i, tx := range req.Transactions {
		if _, err := tx.CalldataBytes(); err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidTransaction, err, fmt.Sprintf("第 %d 笔交易的 data 无法解码", i),
				xerrors.WithMetadata("index", strconv.Itoa(i)))
		}
	}
	if len(req.SimulationResults) > len(req.Transactions) {
		return xerrors.New(xerrors.CodeInvalidArgument, "模拟结果数量多于交易数量")
	}
	return nil
}

func wrapContextErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "评估超时")
	}
	return xerrors.Wrap(xerrors.CodeExecutorFailure, err, "评估被中断")
}

func cloneAll(txs []validation.Transaction) []validation.Transaction {
	out := make([]validation.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = tx.Clone()
	}
	return out
}

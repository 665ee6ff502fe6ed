package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	xerrors "Dexter-Chain/internal/errors"
	"Dexter-Chain/internal/validation"
	"Dexter-Chain/pkg/logger"
)

// 默认子代理名称，顺序即注册顺序。
const (
	AgentGas      = "gas"
	AgentSecurity = "security"
	AgentMEV      = "mev"
	AgentState    = "state"
)

// DefaultTimeout 是单个子代理的默认执行时限。
const DefaultTimeout = 10 * time.Second

// Coordinator 并发运行选定的子代理并汇总结论。
type Coordinator struct {
	names     []string
	analyzers map[string]Analyzer
	timeout   time.Duration
	logger    *slog.Logger
}

// Option 定义 Coordinator 的可选配置。
type Option func(*Coordinator)

// WithAnalyzer 注册或替换一个子代理。
func WithAnalyzer(name string, analyzer Analyzer) Option {
	return func(c *Coordinator) {
		if analyzer == nil {
			return
		}
		if _, exists := c.analyzers[name]; !exists {
			c.names = append(c.names, name)
		}
		c.analyzers[name] = analyzer
	}
}

// WithTimeout 设置单个子代理的执行时限，非正数表示不限时。
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout < 0 {
			timeout = 0
		}
		c.timeout = timeout
	}
}

// WithLogger 指定日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator 创建包含四个默认子代理的 Coordinator。
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		names: []string{AgentGas, AgentSecurity, AgentMEV, AgentState},
		analyzers: map[string]Analyzer{
			AgentGas:      GasAnalyzer{},
			AgentSecurity: SecurityValidator{},
			AgentMEV:      MEVInspector{},
			AgentState:    StateValidator{},
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = logger.Named("subagent")
	}
	return c
}

// Names 返回已注册的子代理名称。
func (c *Coordinator) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Analyze 对同一输入并发运行选定的子代理（为空时运行全部），等待全部完成后返回
// 名称到结论的映射。未知名称被忽略；失败、panic 或超时的子代理产生一条
// category=error 的 warning 结论，不影响其他子代理。
func (c *Coordinator) Analyze(ctx context.Context, tx validation.Transaction, objective validation.Objective, actx Context, agents ...string) map[string][]validation.Result {
	if len(agents) == 0 {
		agents = c.names
	}

	selected := make([]string, 0, len(agents))
	seen := make(map[string]struct{}, len(agents))
	for _, name := range agents {
		if _, ok := c.analyzers[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, name)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string][]validation.Result, len(selected))
	)
	for _, name := range selected {
		wg.Add(1)
		go func(name string, analyzer Analyzer) {
			defer wg.Done()
			// 每个分析器拿到独立副本，互不可见。
			findings := c.run(ctx, name, analyzer, tx.Clone(), objective, actx)
			mu.Lock()
			results[name] = findings
			mu.Unlock()
		}(name, c.analyzers[name])
	}
	wg.Wait()
	return results
}

// Flatten 按注册顺序展开 Analyze 的结果。
func (c *Coordinator) Flatten(byAgent map[string][]validation.Result) []validation.Result {
	var out []validation.Result
	seen := make(map[string]struct{}, len(byAgent))
	for _, name := range c.names {
		if findings, ok := byAgent[name]; ok {
			out = append(out, findings...)
			seen[name] = struct{}{}
		}
	}
	for name, findings := range byAgent {
		if _, ok := seen[name]; !ok {
			out = append(out, findings...)
		}
	}
	return out
}

type outcome struct {
	results []validation.Result
	err     error
}

func (c *Coordinator) run(ctx context.Context, name string, analyzer Analyzer, tx validation.Transaction, objective validation.Objective, actx Context) []validation.Result {
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := analyzer.Analyze(runCtx, tx, objective, actx)
		done <- outcome{results: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return c.failure(name, out.err)
		}
		return out.results
	case <-runCtx.Done():
		return c.failure(name, runCtx.Err())
	}
}

func (c *Coordinator) failure(name string, err error) []validation.Result {
	c.logger.Warn("子代理执行失败",
		slog.String("agent", name),
		slog.String("code", string(xerrors.CodeSubagentFailure)),
		slog.String("error", err.Error()),
	)
	return []validation.Result{FailureResult(name, err)}
}

// FailureResult 构造子代理失败时的合成结论。
func FailureResult(name string, err error) validation.Result {
	return validation.Result{
		Passed:   false,
		Category: validation.CategoryError,
		Message:  fmt.Sprintf("Subagent %s failed: %v", name, err),
		Severity: validation.SeverityWarning,
	}
}

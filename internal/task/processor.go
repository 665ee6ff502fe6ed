package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"Dexter-Chain/internal/agent"
	xerrors "Dexter-Chain/internal/errors"
	"Dexter-Chain/internal/observability/alerting"
	"Dexter-Chain/internal/observability/metrics"
	"Dexter-Chain/pkg/logger"
)

// Executor 定义了处理器所需的 Agent 能力。
type Executor interface {
	Execute(ctx context.Context, req agent.Request) (*agent.Outcome, error)
}

// stage 标记一次任务处理的去向，用于审计、指标与告警。
type stage string

const (
	stageSucceeded    stage = "succeeded"
	stageDegraded     stage = "degraded"
	stageRetry        stage = "retry"
	stageTerminal     stage = "terminal"
	stageNonRetryable stage = "non_retryable"
	stageClaim        stage = "claim"
	stageCompensate   stage = "compensate"
)

// Processor 负责从队列消费任务并交给 Agent 执行评估-优化闭环。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置不可重试错误的降级策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) { p.recovery = handler }
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerter = dispatcher }
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("processor")
	}
	return p
}

// Start 阻塞消费队列直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

// handle 只在存储层出错时返回错误，队列据此决定是否重新投递。
func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, taskID)
	switch {
	case stdErrors.Is(err, ErrTaskNotFound), stdErrors.Is(err, ErrTaskCompleted), stdErrors.Is(err, ErrTaskExhausted):
		p.logger.Debug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
		return nil
	case err != nil:
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, stageClaim)
		return err
	}

	outcome, execErr := p.executor.Execute(ctx, cloneRequest(task.Request))
	if execErr != nil {
		return p.handleExecutionFailure(ctx, task, execErr)
	}
	if err := p.complete(ctx, task, outcome, CodeTaskProcessing); err != nil {
		return ignoreRequeued(err)
	}
	metrics.ObserveFindings(outcome.FinalEvaluation)
	metrics.ObserveOptimization(outcome.Iterations, outcome.Valid)
	p.record(task, stageSucceeded, slog.Bool("valid", outcome.Valid), slog.Int("iterations", outcome.Iterations))
	return nil
}

// complete 保存结果；写入失败时把任务退回失败态并重新投递，由下一次领取重新执行。
func (p *Processor) complete(ctx context.Context, task *Task, outcome *agent.Outcome, code xerrors.Code) error {
	err := p.store.MarkSucceeded(ctx, task.ID, outcome)
	if err == nil {
		return nil
	}
	p.logger.Error("保存任务结果失败", slog.Any("error", err), slog.String("task_id", task.ID))
	if storeErr := p.store.MarkFailed(ctx, task.ID, code, err.Error(), false); storeErr != nil {
		return storeErr
	}
	if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
		return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("任务 %s 保存结果失败后重投失败", task.ID))
	}
	return errRequeued
}

// errRequeued 表示任务已由处理器自行重投，调用方不应再计入成功。
var errRequeued = stdErrors.New("task requeued")

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.RetryableError(execErr)

	if !retryable && p.recovery != nil {
		fallback, recErr := p.recovery.Recover(ctx, task, execErr)
		switch {
		case recErr != nil:
			wrapped := xerrors.Wrap(CodeTaskCompensate, recErr, "任务降级失败")
			p.logger.Error("执行降级逻辑失败", slog.Any("error", wrapped), slog.String("task_id", task.ID))
			p.emitAlert(ctx, task, CodeTaskCompensate, wrapped, stageCompensate)
		case fallback != nil:
			if err := p.complete(ctx, task, fallback, code); err != nil {
				return ignoreRequeued(err)
			}
			p.record(task, stageDegraded, slog.String("cause", execErr.Error()), slog.Bool("valid", fallback.Valid))
			p.emitAlert(ctx, task, code, execErr, stageDegraded)
			return nil
		}
	}

	terminal := !retryable || task.Attempts >= task.MaxRetries
	if err := p.store.MarkFailed(ctx, task.ID, code, execErr.Error(), terminal); err != nil {
		p.logger.Error("标记任务失败状态出错", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}

	st := stageRetry
	switch {
	case !retryable:
		st = stageNonRetryable
	case terminal:
		st = stageTerminal
	}
	p.record(task, st,
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("max_retries", task.MaxRetries),
	)
	p.emitAlert(ctx, task, code, execErr, st)

	if st == stageRetry {
		if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
			return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", task.ID))
		}
	}
	return nil
}

func ignoreRequeued(err error) error {
	if stdErrors.Is(err, errRequeued) {
		return nil
	}
	return err
}

// record 写审计日志并累计任务去向指标。
func (p *Processor) record(task *Task, st stage, attrs ...any) {
	metrics.ObserveJob(string(st))
	attrs = append([]any{
		slog.String("task_id", task.ID),
		slog.String("stage", string(st)),
		slog.Int("attempts", task.Attempts),
	}, attrs...)
	if st == stageSucceeded {
		logger.Audit().Info("任务执行完成", attrs...)
		return
	}
	logger.Audit().Warn("任务未正常完成", attrs...)
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, st stage) {
	if p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:       code,
		Message:    attrs.Message,
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata: map[string]string{
			"stage":          string(st),
			"objective_type": task.Request.Objective.Type,
			"transactions":   strconv.Itoa(len(task.Request.Transactions)),
		},
		OccurredAt: time.Now(),
	}
	if cause != nil {
		event.Message = cause.Error()
		event.Metadata["cause"] = cause.Error()
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败", slog.Any("error", err), slog.String("task_id", task.ID), slog.String("stage", string(st)))
	}
}

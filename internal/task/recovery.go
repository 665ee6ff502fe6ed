package task

import (
	"context"

	"Dexter-Chain/internal/agent"
	"Dexter-Chain/internal/evaluator"
	"Dexter-Chain/internal/validation"
)

// RecoveryHandler 定义了在任务执行失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行补偿或降级。
	// 返回的 Outcome 将作为降级结果写入任务；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, task *Task, cause error) (*agent.Outcome, error)
}

// RuleOnlyRecovery 在闭环失败时退化为仅规则引擎的单轮评估，不做模拟与子代理分析。
type RuleOnlyRecovery struct {
	Evaluator *evaluator.Evaluator
}

// Recover 实现 RecoveryHandler。
func (r RuleOnlyRecovery) Recover(_ context.Context, task *Task, _ error) (*agent.Outcome, error) {
	if task == nil || len(task.Request.Transactions) == 0 {
		return nil, nil
	}
	ev := r.Evaluator
	if ev == nil {
		ev = evaluator.New(nil)
	}
	req := task.Request
	batch := ev.EvaluateBatch(req.Transactions, req.Objective, req.SimulationResults)
	return &agent.Outcome{
		Transactions:    append([]validation.Transaction(nil), req.Transactions...),
		Rounds:          []agent.Round{{Iteration: 0, Applied: []string{}, Evaluation: batch}},
		FinalEvaluation: batch,
		Valid:           batch.AllValid,
	}, nil
}

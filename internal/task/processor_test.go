package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Dexter-Chain/internal/agent"
	xerrors "Dexter-Chain/internal/errors"
	"Dexter-Chain/internal/observability/alerting"
	"Dexter-Chain/internal/validation"
)

type fakeAgent struct {
	processed atomic.Int32
	latency   time.Duration
	err       error
}

func (f *fakeAgent) Execute(ctx context.Context, req agent.Request) (*agent.Outcome, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.processed.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Outcome{Transactions: req.Transactions, Valid: true}, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDispatcher) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Metadata["stage"])
	}
	return out
}

func sampleRequest() agent.Request {
	return agent.Request{
		Transactions: []validation.Transaction{{To: "0x000000000000000000000000000000000000dEaD", Data: "0x"}},
		Objective:    validation.Objective{Type: "transfer"},
	}
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeAgent{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		if _, err := service.Submit(ctx, "", sampleRequest()); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorStoresOutcome(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	service := NewService(store, queue, 3)
	processor := NewProcessor(&fakeAgent{}, store, queue, queue)

	task, err := service.Submit(ctx, "job-1", sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := processor.handle(ctx, task.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := service.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusSucceeded || got.Result == nil || !got.Result.Valid || got.Attempts != 1 {
		t.Fatalf("unexpected task: %+v", got)
	}

	// 已完成的任务再次投递时被跳过。
	if err := processor.handle(ctx, task.ID); err != nil {
		t.Fatalf("completed task should be skipped: %v", err)
	}
}

func TestProcessorRetriesThenExhausts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	alerts := &recordingDispatcher{}
	executor := &fakeAgent{err: xerrors.New(xerrors.CodeTimeout, "rpc timeout")}
	service := NewService(store, queue, 2)
	processor := NewProcessor(executor, store, queue, queue, WithAlertDispatcher(alerts))

	task, err := service.Submit(ctx, "", sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-queue.ch

	if err := processor.handle(ctx, task.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case m := <-queue.ch:
		if m.TaskID != task.ID {
			t.Fatalf("unexpected requeued id: %s", m.TaskID)
		}
	default:
		t.Fatalf("retryable failure should requeue the task")
	}

	if err := processor.handle(ctx, task.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := service.Get(ctx, task.ID)
	if got.Status != StatusFailed || got.ErrorCode != string(xerrors.CodeTimeout) {
		t.Fatalf("unexpected task: %+v", got)
	}
	stages := alerts.stages()
	if len(stages) != 2 || stages[0] != "retry" || stages[1] != "terminal" {
		t.Fatalf("unexpected alert stages: %v", stages)
	}
}

func TestProcessorFallsBackToRuleOnlyEvaluation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	executor := &fakeAgent{err: xerrors.New(xerrors.CodeInvalidArgument, "bad request")}
	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithRecoveryHandler(RuleOnlyRecovery{}))

	task, err := service.Submit(ctx, "", sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := processor.handle(ctx, task.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := service.Get(ctx, task.ID)
	if got.Status != StatusSucceeded || got.Result == nil || len(got.Result.Rounds) != 1 {
		t.Fatalf("expected degraded result, got %+v", got)
	}
	if !got.Result.Valid {
		t.Fatalf("plain transfer should be valid: %+v", got.Result.FinalEvaluation)
	}
}

func TestServiceSubmitValidationAndIdempotency(t *testing.T) {
	ctx := context.Background()
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), 3)

	if _, err := service.Submit(ctx, "", agent.Request{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected validation error, got %v", err)
	}

	first, err := service.Submit(ctx, "same", sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := service.Submit(ctx, "same", sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID || first.CreatedAt != second.CreatedAt {
		t.Fatalf("resubmission should return the existing task")
	}
}

func TestProcessorAlertsCarryObjectiveMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	alerts := &recordingDispatcher{}
	executor := &fakeAgent{err: xerrors.New(xerrors.CodeInvalidArgument, "bad request")}
	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithAlertDispatcher(alerts))

	task, err := service.Submit(ctx, "", sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-queue.ch
	if err := processor.handle(ctx, task.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := service.Get(ctx, task.ID)
	if got.Status != StatusFailed || got.Attempts < got.MaxRetries {
		t.Fatalf("non-retryable failure should exhaust attempts: %+v", got)
	}
	select {
	case m := <-queue.ch:
		t.Fatalf("non-retryable failure should not requeue, got %s", m.TaskID)
	default:
	}
	if len(alerts.events) != 1 {
		t.Fatalf("unexpected alerts: %+v", alerts.events)
	}
	meta := alerts.events[0].Metadata
	if meta["stage"] != "non_retryable" || meta["objective_type"] != "transfer" || meta["transactions"] != "1" {
		t.Fatalf("unexpected alert metadata: %v", meta)
	}
}

func TestServiceRejectsUndecodableCalldata(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), 3)
	req := sampleRequest()
	req.Transactions[0].Data = "0xzz"
	if _, err := service.Submit(context.Background(), "", req); xerrors.CodeOf(err) != xerrors.CodeInvalidTransaction {
		t.Fatalf("expected invalid transaction error, got %v", err)
	}
}

func TestServiceWaitUntilCompleted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 3)
	processor := NewProcessor(&fakeAgent{latency: 20 * time.Millisecond}, store, queue, queue)
	go func() { _ = processor.Start(ctx) }()

	task, err := service.Submit(ctx, "", sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	done, err := service.WaitUntilCompleted(ctx, task.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != StatusSucceeded || done.Result == nil {
		t.Fatalf("unexpected task: %+v", done)
	}
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"Dexter-Chain/internal/agent"
	xerrors "Dexter-Chain/internal/errors"
	"Dexter-Chain/internal/observability/metrics"
	"Dexter-Chain/internal/optimizer"
	"Dexter-Chain/internal/subagent"
	"Dexter-Chain/internal/task"
	"Dexter-Chain/internal/validation"
)

// evaluateRequest 接受批量交易，或通过 transaction 字段提交单笔交易。
type evaluateRequest struct {
	agent.Request
	Transaction      *validation.Transaction      `json:"transaction,omitempty"`
	SimulationResult *validation.SimulationResult `json:"simulation_result,omitempty"`
}

type singleEvaluation struct {
	Valid   bool                `json:"valid"`
	Results []validation.Result `json:"results"`
}

type suggestionsRequest struct {
	Objective validation.Objective `json:"objective"`
	Issues    []validation.Result  `json:"issues"`
}

type subagentsRequest struct {
	Transaction validation.Transaction `json:"transaction"`
	Objective   validation.Objective   `json:"objective"`
	Context     agent.RequestContext   `json:"context"`
	Agents      []string               `json:"agents,omitempty"`
}

type createJobRequest struct {
	ID string `json:"id,omitempty"`
	agent.Request
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !s.requireAgent(w) {
		return
	}
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	single := req.Transaction != nil
	if single {
		req.Transactions = []validation.Transaction{*req.Transaction}
		req.SimulationResults = nil
		if req.SimulationResult != nil {
			req.SimulationResults = []*validation.SimulationResult{req.SimulationResult}
		}
	}

	batch, err := s.agent.Evaluate(r.Context(), req.Request)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ObserveFindings(batch)

	if single {
		tr := batch.TransactionResults[0]
		writeJSON(w, http.StatusOK, singleEvaluation{Valid: tr.Valid, Results: tr.Results})
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if !s.requireAgent(w) {
		return
	}
	var req agent.Request
	if !decodeBody(w, r, &req) {
		return
	}
	outcome, err := s.agent.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ObserveFindings(outcome.FinalEvaluation)
	metrics.ObserveOptimization(outcome.Iterations, outcome.Valid)
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	var req suggestionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": optimizer.SuggestAlternatives(req.Objective, req.Issues),
	})
}

func (s *Server) handleSubagents(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "子代理未启用"))
		return
	}
	var req subagentsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var actx subagent.Context
	if req.Context.CurrentBaseFee != nil {
		actx.CurrentBaseFee = req.Context.CurrentBaseFee.Int()
	}
	byAgent := s.coordinator.Analyze(r.Context(), req.Transaction, req.Objective, actx, req.Agents...)
	writeJSON(w, http.StatusOK, map[string]any{
		"results": byAgent,
		"all":     s.coordinator.Flatten(byAgent),
	})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if !s.requireTasks(w) {
		return
	}
	var req createJobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.tasks.Submit(r.Context(), req.ID, req.Request)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if !s.requireTasks(w) {
		return
	}
	query := r.URL.Query()
	opts := []task.ListOption{task.WithQuery(query.Get("q"))}
	if raw := query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, task.WithLimit(n))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, task.WithOffset(n))
		}
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.TrimSpace(part))
			if !task.IsValidStatus(status) {
				writeError(w, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的任务状态: %s", part)))
				return
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := query.Get("valid"); raw != "" {
		valid, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("valid 参数必须是布尔值: %s", raw)))
			return
		}
		opts = append(opts, task.WithValidity(valid))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}

	tasks, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "stats": stats})
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if !s.requireTasks(w) {
		return
	}
	found, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) requireAgent(w http.ResponseWriter) bool {
	if s.agent == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return false
	}
	return true
}

func (s *Server) requireTasks(w http.ResponseWriter) bool {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未启用"))
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("请求体为空")
		}
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return false
	}
	return true
}

// statusFor 将统一错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, xerrors.CodeInvalidTransaction:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
		if cause := e.Unwrap(); cause != nil {
			message = fmt.Sprintf("%s: %v", message, cause)
		}
	}
	writeJSON(w, statusFor(code), map[string]errorBody{"error": {Code: string(code), Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

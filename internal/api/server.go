package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"Dexter-Chain/internal/agent"
	"Dexter-Chain/internal/observability/metrics"
	"Dexter-Chain/internal/subagent"
	"Dexter-Chain/internal/task"
	"Dexter-Chain/internal/web3"
	"Dexter-Chain/pkg/logger"
)

// maxBodyBytes 限制单个请求体的大小。
const maxBodyBytes = 4 << 20

// Server 负责暴露 REST 接口，供外部提交交易评估与优化请求。
type Server struct {
	addr        string
	agent       *agent.Agent
	coordinator *subagent.Coordinator
	tasks       *task.Service
	chain       web3.Client
	logger      *slog.Logger
}

// Option 定义可选的 Server 配置。
type Option func(*Server)

// WithTaskService 启用异步任务接口。
func WithTaskService(svc *task.Service) Option {
	return func(s *Server) {
		s.tasks = svc
	}
}

// WithCoordinator 启用子代理分析接口。
func WithCoordinator(c *subagent.Coordinator) Option {
	return func(s *Server) {
		s.coordinator = c
	}
}

// WithChainClient 让健康检查附带链上快照。
func WithChainClient(c web3.Client) Option {
	return func(s *Server) {
		s.chain = c
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, ag *agent.Agent, opts ...Option) *Server {
	s := &Server{addr: addr, agent: ag, logger: logger.Named("api")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回已注册全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /api/v1/optimize", s.handleOptimize)
	mux.HandleFunc("POST /api/v1/suggestions", s.handleSuggestions)
	mux.HandleFunc("POST /api/v1/subagents", s.handleSubagents)
	mux.HandleFunc("POST /api/v1/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleJobDetail)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return instrument(mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("API 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.coordinator != nil {
		resp["subagents"] = s.coordinator.Names()
	}
	if s.chain != nil {
		snapshot, err := s.chain.FetchChainSnapshot(r.Context())
		if err != nil {
			resp["status"] = "degraded"
			resp["chain_error"] = err.Error()
		} else {
			resp["chain"] = snapshot
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument 记录每个路由的请求数与耗时。
func instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.ObserveHTTPRequest(pattern, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述了 dexterd 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Evaluator EvaluatorConfig `json:"evaluator"`
	Jobs      JobsConfig      `json:"jobs"`
	Web3      Web3Config      `json:"web3"`
	Alerting  AlertingConfig  `json:"alerting"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
	// MetricsAddress 非空时额外启动独立的指标端口，API 的 /metrics 始终可用。
	MetricsAddress string `json:"metrics_address"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level   string      `json:"level"`
	Format  string      `json:"format"`
	Outputs []string    `json:"outputs"`
	Audit   AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// EvaluatorConfig 描述评估与优化流程的参数。
type EvaluatorConfig struct {
	RulesFile              string   `json:"rules_file"`
	EnableSubagents        *bool    `json:"enable_subagents"`
	Agents                 []string `json:"agents"`
	SubagentTimeoutSeconds int      `json:"subagent_timeout_seconds"`
	SubagentConcurrency    int      `json:"subagent_concurrency"`
	MaxIterations          int      `json:"max_iterations"`
	DefaultBaseFeeWei      string   `json:"default_base_fee_wei"`
}

// SubagentsEnabled 未显式配置时默认启用子代理。
func (e EvaluatorConfig) SubagentsEnabled() bool {
	return e.EnableSubagents == nil || *e.EnableSubagents
}

// SubagentTimeout 返回单个子代理的执行时限。
func (e EvaluatorConfig) SubagentTimeout() time.Duration {
	return time.Duration(e.SubagentTimeoutSeconds) * time.Second
}

// DefaultBaseFee 解析默认 base fee。
func (e EvaluatorConfig) DefaultBaseFee() (*big.Int, error) {
	fee, ok := new(big.Int).SetString(strings.TrimSpace(e.DefaultBaseFeeWei), 10)
	if !ok || fee.Sign() < 0 {
		return nil, fmt.Errorf("无效的 default_base_fee_wei: %q", e.DefaultBaseFeeWei)
	}
	return fee, nil
}

// JobsConfig 描述异步评估任务的存储与队列。
type JobsConfig struct {
	Store   StoreConfig `json:"store"`
	Queue   QueueConfig `json:"queue"`
	Workers int         `json:"workers"`
	Retries int         `json:"retries"`
}

// StoreConfig 描述任务存储后端。
type StoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// QueueConfig 描述任务队列后端。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Buffer   int            `json:"buffer"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 是 Redis 队列的连接参数。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 是 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// Web3Config 包含模拟交易所需的节点信息，留空表示不做链上模拟。
type Web3Config struct {
	RPCURL             string `json:"rpc_url"`
	ChainConfig        string `json:"chain_config"`
	DefaultChain       string `json:"default_chain"`
	From               string `json:"from"`
	CallTimeoutSeconds int    `json:"call_timeout_seconds"`
}

// Enabled 判断是否配置了任何节点。
func (w Web3Config) Enabled() bool {
	return strings.TrimSpace(w.RPCURL) != "" || strings.TrimSpace(w.ChainConfig) != ""
}

// CallTimeout 返回单次 RPC 调用的超时时间。
func (w Web3Config) CallTimeout() time.Duration {
	return time.Duration(w.CallTimeoutSeconds) * time.Second
}

// AlertingConfig 配置任务失败时的告警通道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回不依赖配置文件的默认配置，供 CLI 本地评估使用。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join("logs", "audit.log")
	}
	c.Logging.Audit.Path = resolvePath(baseDir, c.Logging.Audit.Path)

	c.Evaluator.RulesFile = resolvePath(baseDir, c.Evaluator.RulesFile)
	if c.Evaluator.SubagentTimeoutSeconds <= 0 {
		c.Evaluator.SubagentTimeoutSeconds = 10
	}
	if c.Evaluator.SubagentConcurrency <= 0 {
		c.Evaluator.SubagentConcurrency = 4
	}
	if c.Evaluator.MaxIterations <= 0 {
		c.Evaluator.MaxIterations = 3
	}
	if c.Evaluator.DefaultBaseFeeWei == "" {
		c.Evaluator.DefaultBaseFeeWei = "30000000000"
	}

	if c.Jobs.Store.Driver == "" {
		c.Jobs.Store.Driver = "memory"
	}
	if c.Jobs.Queue.Driver == "" {
		c.Jobs.Queue.Driver = "memory"
	}
	if c.Jobs.Queue.Buffer <= 0 {
		c.Jobs.Queue.Buffer = 1024
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.Retries < 0 {
		c.Jobs.Retries = 0
	}

	c.Web3.ChainConfig = resolvePath(baseDir, c.Web3.ChainConfig)
	if c.Web3.CallTimeoutSeconds <= 0 {
		c.Web3.CallTimeoutSeconds = 15
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir)
	}
}

// Validate 检查互相依赖的配置项。
func (c *Config) Validate() error {
	switch c.Jobs.Store.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Jobs.Store.DSN) == "" {
			return errors.New("mysql 任务存储需要配置 dsn")
		}
	default:
		return fmt.Errorf("未知的任务存储驱动: %s", c.Jobs.Store.Driver)
	}
	switch c.Jobs.Queue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Jobs.Queue.Driver)
	}
	if _, err := c.Evaluator.DefaultBaseFee(); err != nil {
		return err
	}
	return nil
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

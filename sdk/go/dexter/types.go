package dexter

// Transaction is an EVM transaction as accepted by the Dexter API. Amounts are
// decimal or 0x-prefixed hex strings.
type Transaction struct {
	To                   string  `json:"to"`
	Value                string  `json:"value,omitempty"`
	Data                 string  `json:"data,omitempty"`
	Gas                  *uint64 `json:"gas,omitempty"`
	MaxFeePerGas         string  `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string  `json:"maxPriorityFeePerGas,omitempty"`
	FlashbotsBundle      bool    `json:"flashbots_bundle,omitempty"`
	ProtectedPriorityFee string  `json:"max_priority_fee_per_gas,omitempty"`
}

// Objective describes what the transactions are meant to achieve.
type Objective struct {
	Type                string             `json:"type"`
	TargetAddress       string             `json:"target_address,omitempty"`
	ExpectedOutput      string             `json:"expected_output,omitempty"`
	MinOutput           string             `json:"min_output,omitempty"`
	ExpectedChanges     map[string]float64 `json:"expected_changes,omitempty"`
	MEVProtection       bool               `json:"mev_protection,omitempty"`
	Protocol            string             `json:"protocol,omitempty"`
	Path                []string           `json:"path,omitempty"`
	DirectPathAvailable bool               `json:"direct_path_available,omitempty"`
	PriceImpactPercent  *float64           `json:"price_impact_percent,omitempty"`
}

// SimulationResult is a pre-computed simulation supplied by the caller.
type SimulationResult struct {
	Success      bool               `json:"success"`
	Error        string             `json:"error,omitempty"`
	AssetChanges map[string]float64 `json:"asset_changes,omitempty"`
	GasUsed      uint64             `json:"gas_used,omitempty"`
}

// RequestContext carries optional chain state.
type RequestContext struct {
	CurrentBaseFee string `json:"current_base_fee,omitempty"`
}

// Request is the payload shared by evaluate, optimize and job submission.
type Request struct {
	Transactions      []Transaction       `json:"transactions"`
	Objective         Objective           `json:"objective"`
	SimulationResults []*SimulationResult `json:"simulation_results,omitempty"`
	Context           RequestContext      `json:"context"`
}

// Result is one finding produced by the rule engine or a subagent.
type Result struct {
	Passed          bool   `json:"passed"`
	Category        string `json:"category"`
	Message         string `json:"message"`
	Severity        string `json:"severity"`
	OptimizationTip string `json:"optimization_tip,omitempty"`
}

// TransactionResult holds the findings for one transaction of a batch.
type TransactionResult struct {
	Index   int      `json:"transaction_index"`
	Valid   bool     `json:"valid"`
	Results []Result `json:"results"`
}

// BatchResult is the outcome of evaluating a batch.
type BatchResult struct {
	AllValid           bool                `json:"all_valid"`
	TransactionResults []TransactionResult `json:"transaction_results"`
	OptimizationTips   []string            `json:"optimization_tips"`
	Summary            string              `json:"summary"`
}

// Report compares a transaction before and after optimization.
type Report struct {
	OriginalTransaction  Transaction `json:"original_transaction"`
	OptimizedTransaction Transaction `json:"optimized_transaction"`
	AppliedOptimizations []string    `json:"applied_optimizations"`
	Improvements         []string    `json:"improvements"`
}

// Suggestion is an alternative approach offered when optimization falls short.
type Suggestion struct {
	Approach    string   `json:"approach"`
	Description string   `json:"description"`
	Benefits    []string `json:"benefits"`
}

// Round is one iteration of the evaluate-optimize loop.
type Round struct {
	Iteration  int         `json:"iteration"`
	Applied    []string    `json:"applied_optimizations"`
	Evaluation BatchResult `json:"evaluation"`
}

// Outcome is the result of an optimization run.
type Outcome struct {
	Transactions    []Transaction `json:"transactions"`
	Rounds          []Round       `json:"rounds"`
	FinalEvaluation BatchResult   `json:"final_evaluation"`
	Valid           bool          `json:"valid"`
	Iterations      int           `json:"iterations"`
	Reports         []Report      `json:"reports"`
	Suggestions     []Suggestion  `json:"suggestions"`
}

// Job statuses reported by the server.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Job is an asynchronous optimization run.
type Job struct {
	ID         string   `json:"id"`
	Request    Request  `json:"request"`
	Status     string   `json:"status"`
	Attempts   int      `json:"attempts"`
	MaxRetries int      `json:"max_retries"`
	LastError  string   `json:"last_error,omitempty"`
	ErrorCode  string   `json:"error_code,omitempty"`
	Result     *Outcome `json:"result,omitempty"`
	CreatedAt  int64    `json:"created_at"`
	UpdatedAt  int64    `json:"updated_at"`
}

// Done reports whether the job reached a terminal state. A failed job that
// still has attempts left will be retried by the server.
func (j Job) Done() bool {
	return j.Status == JobSucceeded || (j.Status == JobFailed && j.Attempts >= j.MaxRetries)
}

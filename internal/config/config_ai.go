package config

const (
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"

	DefaultDeepSeekBaseURL = "https://api.deepseek.com"
)

// Operation names, used for per-operation config, circuit breakers and metrics
const (
	OpAnalyze       = "analyze"
	OpDeepInsights  = "deepInsights"
	OpFormat        = "format"
	OpComplete      = "complete"
	OpTagCandidates = "tagCandidates"
)

// Operations lists every operation with its own AI configuration
var Operations = []string{OpAnalyze, OpDeepInsights, OpFormat, OpComplete, OpTagCandidates}

func (a *AIConfig) operation(name string) *OperationAIConfig {
	switch name {
	case OpAnalyze:
		return &a.Analyze
	case OpDeepInsights:
		return &a.DeepInsights
	case OpFormat:
		return &a.Format
	case OpComplete:
		return &a.Complete
	case OpTagCandidates:
		return &a.TagCandidates
	}
	return &OperationAIConfig{}
}

// applyOperationDefaults applies global defaults to operation-specific configuration
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.Model
	}
	// A base URL only makes sense for the provider it was set for
	if opCfg.BaseURL == "" && opCfg.Provider == c.AI.Provider {
		opCfg.BaseURL = c.AI.BaseURL
	}
	if opCfg.Timeout == nil {
		opCfg.Timeout = &c.AI.Timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.MaxRetries == nil {
		opCfg.MaxRetries = &c.AI.MaxRetries
	}
	if opCfg.Temperature == nil {
		opCfg.Temperature = &c.AI.Temperature
	}
	if opCfg.CircuitBreaker == nil {
		opCfg.CircuitBreaker = &c.AI.CircuitBreaker
	}
}

// GetOperationConfig returns the AI configuration for an operation with
// fallback to the global config. The returned value is a copy.
func (c *Config) GetOperationConfig(name string) OperationAIConfig {
	config := *c.AI.operation(name)
	c.applyOperationDefaults(&config)
	return config
}

// IsModelAllowed reports whether a caller may select model. An empty allow
// list permits any model.
func (c *Config) IsModelAllowed(model string) bool {
	if len(c.AI.AllowedModels) == 0 {
		return true
	}
	for _, m := range c.AI.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

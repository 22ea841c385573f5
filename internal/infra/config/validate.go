package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

var validProviderTypes = map[string]bool{
	"openai":  true,
	"bedrock": true,
}

var validPolicies = map[string]bool{
	"similarity": true,
	"pipeline":   true,
	"supervisor": true,
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateRouting(cfg, ve)
	validateStore(cfg, ve)
	validateAgents(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must not be empty")
		return
	}
	names := map[string]bool{}
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
		}
		if names[p.Name] {
			ve.Add("llm.providers[%d].name %q is duplicated", i, p.Name)
		}
		names[p.Name] = true
		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is not supported", i, p.Type)
		}
	}
	if cfg.LLM.DefaultProvider != "" && !names[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.RateLimit.Enabled && cfg.LLM.RateLimit.RequestsPerMinute <= 0 {
		ve.Add("llm.rate_limit.requests_per_minute must be > 0 when enabled")
	}
}

func validateRouting(cfg *Config, ve *ValidationError) {
	r := cfg.Routing
	if !validPolicies[r.Policy] {
		ve.Add("routing.policy %q is not one of similarity, pipeline, supervisor", r.Policy)
	}
	if r.SwitchThreshold < 0 || r.SwitchThreshold > 1 {
		ve.Add("routing.switch_threshold must be in [0,1]")
	}
	if r.TopN <= 0 {
		ve.Add("routing.top_n must be > 0")
	}
	if r.MaxHistory < 0 {
		ve.Add("routing.max_history must be >= 0")
	}
	if r.TurnTimeout <= 0 {
		ve.Add("routing.turn_timeout must be > 0")
	}
	if r.Policy == "pipeline" && len(r.Pipeline) == 0 {
		ve.Add("routing.pipeline must list at least one stage for the pipeline policy")
	}
	if r.Policy == "supervisor" && r.Supervisor == "" {
		ve.Add("routing.supervisor must name the controlling agent for the supervisor policy")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
	if cfg.Store.SaveAttempts <= 0 {
		ve.Add("store.save_attempts must be > 0")
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	seen := map[string]bool{}
	for i, a := range cfg.Agents {
		if a.Name == "" {
			ve.Add("agents[%d].name must not be empty", i)
		}
		if seen[a.Name] {
			ve.Add("agents[%d].name %q is duplicated", i, a.Name)
		}
		seen[a.Name] = true
		if a.SystemPrompt == "" {
			ve.Add("agents[%d].system_prompt must not be empty", i)
		}
	}
}

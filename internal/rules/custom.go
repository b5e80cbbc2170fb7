package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/autoclaim/kestrel/internal/domain"
)

// CustomEngine evaluates operator-defined CEL rules on top of the
// built-in checks. Expressions must return bool: true means the rule
// fires and contributes its configured failure. Rules are compiled once
// at load and can be hot-reloaded from the database.
type CustomEngine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*compiledCustomRule
	maxWorkers    int
}

type compiledCustomRule struct {
	rule    *domain.CustomRule
	program cel.Program
}

// NewCustomEngine creates a custom rule engine.
func NewCustomEngine(maxWorkers int) (*CustomEngine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("claim_amount", cel.IntType),
		cel.Variable("facts", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("policy", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("plate_text", cel.StringType),
		cel.Variable("damage_severity", cel.StringType),
		cel.Variable("coverage", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{
		env:           env,
		compiledRules: make(map[string]*compiledCustomRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (c *CustomEngine) ValidateRule(rule *domain.CustomRule) error {
	if rule == nil {
		return fmt.Errorf("custom rule is required")
	}
	_, err := c.compile(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (c *CustomEngine) LoadRule(rule *domain.CustomRule) error {
	compiled, err := c.compile(rule)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiledRules[rule.ID] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (c *CustomEngine) LoadRules(rules []*domain.CustomRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := c.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set. Enables
// hot-reloading from the database without dropping evaluations.
func (c *CustomEngine) ReloadRules(rules []*domain.CustomRule) error {
	newRules := make(map[string]*compiledCustomRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := c.compile(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiledRules = newRules
	return nil
}

// RulesCount returns the number of loaded rules.
func (c *CustomEngine) RulesCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.compiledRules)
}

// LoadedRules returns the currently loaded rule definitions.
func (c *CustomEngine) LoadedRules() []*domain.CustomRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rules := make([]*domain.CustomRule, 0, len(c.compiledRules))
	for _, compiled := range c.compiledRules {
		rules = append(rules, compiled.rule)
	}
	return rules
}

// Evaluate runs all loaded rules for the tenant in parallel and returns
// their outcomes for folding into a verification run. Rules with an
// empty tenant id apply to every tenant. An expression error fails the
// rule LOW so a broken operator rule can never silently approve.
func (c *CustomEngine) Evaluate(ctx context.Context, tenantID string, claimAmount int64, facts *domain.FactBundle, policy *domain.PolicyRecord) ([]Outcome, error) {
	c.mu.RLock()
	rules := make([]*compiledCustomRule, 0, len(c.compiledRules))
	for _, compiled := range c.compiledRules {
		if compiled.rule.TenantID == "" || compiled.rule.TenantID == tenantID {
			rules = append(rules, compiled)
		}
	}
	c.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation, err := buildActivation(claimAmount, facts, policy)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *compiledCustomRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[idx] = evaluateCustomRule(r, activation)
		}(i, rule)
	}
	wg.Wait()

	return outcomes, nil
}

// Close clears the loaded rules.
func (c *CustomEngine) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiledRules = make(map[string]*compiledCustomRule)
	return nil
}

func (c *CustomEngine) compile(rule *domain.CustomRule) (*compiledCustomRule, error) {
	ast, issues := c.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &compiledCustomRule{rule: rule, program: program}, nil
}

func evaluateCustomRule(r *compiledCustomRule, activation map[string]any) Outcome {
	out, _, err := r.program.Eval(activation)
	if err != nil {
		return fail(
			r.rule.ID,
			r.rule.Name,
			fmt.Sprintf("rule evaluation error: %v", err),
			domain.SeverityLow,
			r.rule.Phase,
		)
	}

	if fired, ok := out.(types.Bool); ok && bool(fired) {
		return fail(r.rule.ID, r.rule.Name, r.rule.Reason, r.rule.Severity, r.rule.Phase)
	}
	return pass(r.rule.ID)
}

// buildActivation converts the typed inputs into CEL-visible maps via a
// JSON round trip, plus a few flat convenience variables.
func buildActivation(claimAmount int64, facts *domain.FactBundle, policy *domain.PolicyRecord) (map[string]any, error) {
	facts = facts.Normalize()

	factsMap, err := toMap(facts)
	if err != nil {
		return nil, fmt.Errorf("failed to convert facts: %w", err)
	}
	policyMap := map[string]any{}
	if policy != nil {
		policyMap, err = toMap(policy)
		if err != nil {
			return nil, fmt.Errorf("failed to convert policy: %w", err)
		}
	}

	plateText := ""
	if facts.OCR != nil {
		plateText = facts.OCR.PlateText
	}
	var coverage int64
	if policy != nil {
		coverage = policy.PlanCoverage
	}

	return map[string]any{
		"claim_amount":    claimAmount,
		"facts":           factsMap,
		"policy":          policyMap,
		"plate_text":      plateText,
		"damage_severity": string(facts.Damage.Severity),
		"coverage":        coverage,
	}, nil
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

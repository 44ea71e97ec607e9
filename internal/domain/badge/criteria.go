// Package badge contains the data-driven achievement criteria evaluator.
// Badges are defined as data: a list of criteria (stat key, required value)
// plus a combine rule expressed in a small expression language, so new
// badges ship without code changes.
package badge

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// DefaultCombineRule averages per-criterion completion ratios.
const DefaultCombineRule = "mean(ratios)"

// Criterion is one requirement of a badge.
type Criterion struct {
	// Key - the learner stat this criterion reads, e.g. "streak_days".
	Key string

	// Required - the value at which the criterion is fully met.
	Required int64
}

// Snapshot is a point-in-time view of a learner's stats.
// Keys match Criterion.Key: "streak_days", "items_completed",
// "sessions_tutored", "claims_rewarded", "commitments_completed".
type Snapshot map[string]int64

// Definition describes a badge as pure data.
type Definition struct {
	// Code - stable identifier, e.g. "iron_streak".
	Code string

	// Title - display name.
	Title string

	// Criteria - the requirements.
	Criteria []Criterion

	// CombineRule - expression over `ratios` (per-criterion completion,
	// each clamped to [0,1]) yielding overall progress. Empty means
	// DefaultCombineRule.
	CombineRule string
}

// Result is the evaluated progress of one badge for one learner.
type Result struct {
	// Progress - overall completion in [0, 1].
	Progress float64

	// Met - whether the badge is earned (progress >= 1).
	Met bool

	// Ratios - per-criterion completion in criterion order.
	Ratios []float64
}

// Evaluator evaluates badge definitions against learner snapshots.
// Combine rules are compiled once and cached per badge code.
type Evaluator struct {
	programs map[string]*vm.Program
}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

// Evaluate computes badge progress for the snapshot.
func (e *Evaluator) Evaluate(def Definition, snapshot Snapshot) (Result, error) {
	if len(def.Criteria) == 0 {
		return Result{}, shared.NewDomainError("badge", "Evaluate", shared.ErrInvalidInput, "badge has no criteria")
	}

	ratios := make([]float64, 0, len(def.Criteria))
	for _, c := range def.Criteria {
		if strings.TrimSpace(c.Key) == "" || c.Required <= 0 {
			return Result{}, shared.NewDomainError("badge", "Evaluate", shared.ErrInvalidInput, "invalid criterion")
		}
		ratio := float64(snapshot[c.Key]) / float64(c.Required)
		if ratio > 1 {
			ratio = 1
		}
		if ratio < 0 {
			ratio = 0
		}
		ratios = append(ratios, ratio)
	}

	program, err := e.program(def)
	if err != nil {
		return Result{}, err
	}

	out, err := expr.Run(program, map[string]interface{}{"ratios": ratios})
	if err != nil {
		return Result{}, shared.WrapError("badge", "Evaluate", shared.ErrInvalidInput, "combine rule failed", err)
	}

	progress, ok := toFloat(out)
	if !ok {
		return Result{}, shared.NewDomainError("badge", "Evaluate", shared.ErrInvalidFormat, "combine rule must yield a number")
	}
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	return Result{
		Progress: progress,
		Met:      progress >= 1,
		Ratios:   ratios,
	}, nil
}

// program returns the compiled combine rule, compiling and caching on first use.
func (e *Evaluator) program(def Definition) (*vm.Program, error) {
	rule := strings.TrimSpace(def.CombineRule)
	if rule == "" {
		rule = DefaultCombineRule
	}

	cacheKey := def.Code + "|" + rule
	if p, ok := e.programs[cacheKey]; ok {
		return p, nil
	}

	program, err := expr.Compile(rule, expr.Env(map[string]interface{}{
		"ratios": []float64{},
	}))
	if err != nil {
		return nil, shared.WrapError("badge", "Compile", shared.ErrInvalidFormat, "invalid combine rule", err)
	}
	e.programs[cacheKey] = program
	return program, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

/*
formula.go - Formula sub-evaluator (CEL)

PURPOSE:
  Formula components carry an arithmetic expression evaluated against the
  calculation context: seed variables (BASE_SALARY, HOURS_WORKED, ...)
  plus every already-computed component value. Expressions are CEL
  (github.com/google/cel-go): a small, non-Turing-complete expression
  language with a real compiler, so malformed formulas are caught as
  Validation errors before any arithmetic runs.

VARIABLES:
  Every context variable is declared to CEL as a double. Template authors
  therefore write numeric literals in decimal form ("HOURS_WORKED * 1.5",
  not "* 3/2"): CEL does not mix int and double arithmetic, and Validate
  reports that as an error at authoring time rather than mid-payroll.

CACHING:
  Compiled programs are cached per (expression, variable signature) in a
  sync.Map. The same template evaluates for many workers in a run; the
  compile cost is paid once.

PRECISION:
  CEL evaluates in float64; the result is converted back to decimal and
  the evaluator rounds at the component boundary. Formulas are authored
  quantities (rates, multipliers), not accumulations, so the float
  round-trip stays well inside the 2-decimal output precision.
*/
package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

// =============================================================================
// FORMULA EVALUATOR
// =============================================================================

// FormulaEvaluator parses, validates, and evaluates formula expressions
// against a variable map. Safe for concurrent use.
type FormulaEvaluator struct {
	programs sync.Map // cache key -> cel.Program
}

// NewFormulaEvaluator returns a ready evaluator with an empty cache.
func NewFormulaEvaluator() *FormulaEvaluator {
	return &FormulaEvaluator{}
}

// ValidationReport is the outcome of static formula validation.
type ValidationReport struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Parse compiles an expression against the given variable names and
// returns its AST. Compilation errors are Validation errors.
func (f *FormulaEvaluator) Parse(expr string, varNames []string) (*cel.Ast, error) {
	env, err := newFormulaEnv(varNames)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("formula environment: %v", err)}
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("formula %q: %v", expr, iss.Err())}
	}
	return ast, nil
}

// Validate statically checks an expression: compile errors are reported
// as errors; a statically non-numeric result type is a warning (it will
// fail at evaluation time if it really is non-numeric).
func (f *FormulaEvaluator) Validate(expr string, varNames []string) ValidationReport {
	ast, err := f.Parse(expr, varNames)
	if err != nil {
		return ValidationReport{Valid: false, Errors: []string{err.Error()}}
	}
	report := ValidationReport{Valid: true}
	if t := ast.OutputType(); t != cel.DoubleType && t != cel.IntType && t != cel.DynType {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("formula %q has non-numeric result type %s", expr, t))
	}
	return report
}

// Evaluate compiles (or reuses) the expression and evaluates it against
// the variables. The result must be numeric.
func (f *FormulaEvaluator) Evaluate(expr string, vars map[string]Money) (Money, error) {
	names := sortedNames(vars)

	prg, err := f.program(expr, names)
	if err != nil {
		return decimal.Zero, err
	}

	activation := make(map[string]any, len(vars))
	for name, value := range vars {
		activation[name] = value.InexactFloat64()
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return decimal.Zero, fmt.Errorf("evaluate %q: %w", expr, err)
	}

	switch v := out.Value().(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint64:
		return decimal.NewFromUint64(v), nil
	default:
		return decimal.Zero, fmt.Errorf("formula %q produced non-numeric value %T", expr, out.Value())
	}
}

// =============================================================================
// INTERNALS
// =============================================================================

func (f *FormulaEvaluator) program(expr string, varNames []string) (cel.Program, error) {
	key := expr + "\x00" + strings.Join(varNames, ",")
	if cached, ok := f.programs.Load(key); ok {
		return cached.(cel.Program), nil
	}

	env, err := newFormulaEnv(varNames)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("formula environment: %v", err)}
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("formula %q: %v", expr, iss.Err())}
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("formula %q: %v", expr, err)}
	}

	f.programs.Store(key, prg)
	return prg, nil
}

func newFormulaEnv(varNames []string) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(varNames))
	for _, name := range varNames {
		opts = append(opts, cel.Variable(name, cel.DoubleType))
	}
	return cel.NewEnv(opts...)
}

func sortedNames(vars map[string]Money) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

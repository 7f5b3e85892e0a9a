package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/engine"
)

func TestFormulaEvaluator_Arithmetic(t *testing.T) {
	// GIVEN: a formula over two context variables
	// WHEN: evaluating with concrete values
	// THEN: the decimal result matches the arithmetic

	f := engine.NewFormulaEvaluator()
	got, err := f.Evaluate("OVERTIME_HOURS * HOURLY_RATE * 1.5", map[string]engine.Money{
		"OVERTIME_HOURS": m("10"),
		"HOURLY_RATE":    m("20"),
	})
	require.NoError(t, err)
	assert.True(t, m("300").Equal(got), "expected 300, got %s", got)
}

func TestFormulaEvaluator_ConditionalExpression(t *testing.T) {
	f := engine.NewFormulaEvaluator()
	got, err := f.Evaluate("GROSS_EARNINGS > 3000.0 ? GROSS_EARNINGS * 0.02 : 0.0", map[string]engine.Money{
		"GROSS_EARNINGS": m("5000"),
	})
	require.NoError(t, err)
	assert.True(t, m("100").Equal(got), "expected 100, got %s", got)
}

func TestFormulaEvaluator_CompileErrorIsValidation(t *testing.T) {
	// Malformed expressions surface as Validation errors, caught before
	// any arithmetic runs.
	f := engine.NewFormulaEvaluator()
	_, err := f.Evaluate("BASE_SALARY *", map[string]engine.Money{"BASE_SALARY": m("1000")})
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err), "compile failure should be a validation error")
}

func TestFormulaEvaluator_UnknownVariableIsValidation(t *testing.T) {
	f := engine.NewFormulaEvaluator()
	_, err := f.Evaluate("UNDECLARED * 2.0", map[string]engine.Money{"BASE_SALARY": m("1000")})
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))
}

func TestFormulaEvaluator_ValidateReportsErrors(t *testing.T) {
	f := engine.NewFormulaEvaluator()

	report := f.Validate("A + * B", []string{"A", "B"})
	assert.False(t, report.Valid)
	assert.NotEmpty(t, report.Errors)

	report = f.Validate("A * 0.5 + B", []string{"A", "B"})
	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
}

func TestFormulaEvaluator_ValidateWarnsOnNonNumericResult(t *testing.T) {
	// A statically non-numeric result compiles but is flagged for the
	// template author.
	f := engine.NewFormulaEvaluator()
	report := f.Validate(`A > 0.0 ? "yes" : "no"`, []string{"A"})
	assert.True(t, report.Valid)
	assert.NotEmpty(t, report.Warnings)
}

func TestFormulaEvaluator_CachedProgramReused(t *testing.T) {
	// Same expression and variable signature evaluated twice: the second
	// call must produce the same result through the cached program.
	f := engine.NewFormulaEvaluator()
	vars := map[string]engine.Money{"A": m("7")}

	first, err := f.Evaluate("A * 2.0", vars)
	require.NoError(t, err)
	second, err := f.Evaluate("A * 2.0", vars)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.True(t, m("14").Equal(second))
}

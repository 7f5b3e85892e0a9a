/*
main.go - Payroll CLI

PURPOSE:
  Command-line companion to the server: runs calculations from YAML
  scenario files and validates templates and formulas without standing up
  a database. Useful for authoring pay structures - HR can iterate on a
  scenario file locally and see the resulting paychecks.

COMMANDS:
  payroll calculate -f scenario.yaml   Run a full scenario in memory
  payroll validate -f template.yaml    Validate a template definition
  payroll formula "EXPR" --vars A,B    Statically check a formula

SCENARIO FILE:
  org_id: org-1
  jurisdiction: NL
  period: monthly
  as_of: 2026-01-31
  annual_allowance: 12000
  template:
    id: tmpl-1
    code: monthly-salary
    components: [...]
  tax_rules:
    - tax_type: wage
      method: bracket
      brackets: [...]
  workers:
    - id: w1
      base_salary: 5000
      extra:
        OVERTIME_HOURS: 10

SEE ALSO:
  - factory/template.go: the definition schemas
  - cmd/server/main.go: the HTTP surface
*/
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/engine/store"
	"github.com/warp/payroll-engine/factory"
)

func main() {
	root := &cobra.Command{
		Use:           "payroll",
		Short:         "Compensation calculation engine CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(calculateCmd(), validateCmd(), formulaCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// =============================================================================
// SCENARIO SCHEMA
// =============================================================================

type scenarioFile struct {
	OrgID           string                 `yaml:"org_id"`
	Jurisdiction    string                 `yaml:"jurisdiction"`
	Period          string                 `yaml:"period"`
	AsOf            string                 `yaml:"as_of"`
	AnnualAllowance float64                `yaml:"annual_allowance"`
	Template        factory.TemplateDef    `yaml:"template"`
	TaxRules        []factory.TaxRuleSetDef `yaml:"tax_rules"`
	Workers         []scenarioWorker       `yaml:"workers"`
}

type scenarioWorker struct {
	ID          string             `yaml:"id"`
	BaseSalary  *float64           `yaml:"base_salary"`
	HourlyRate  *float64           `yaml:"hourly_rate"`
	HoursWorked float64            `yaml:"hours_worked"`
	Resident    *bool              `yaml:"resident"`
	Extra       map[string]float64 `yaml:"extra"`
}

// =============================================================================
// CALCULATE
// =============================================================================

func calculateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Run a scenario file through the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var sc scenarioFile
			if err := yaml.Unmarshal(data, &sc); err != nil {
				return fmt.Errorf("failed to parse scenario: %w", err)
			}
			return runScenario(cmd.Context(), cmd, sc)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "scenario YAML file")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runScenario(ctx context.Context, cmd *cobra.Command, sc scenarioFile) error {
	asOf := engine.DateOnly(time.Now().UTC())
	if sc.AsOf != "" {
		var err error
		if asOf, err = time.Parse(time.DateOnly, sc.AsOf); err != nil {
			return fmt.Errorf("invalid as_of: %w", err)
		}
	}
	period := engine.PeriodMonthly
	if sc.Period != "" {
		period = engine.PayPeriod(sc.Period)
	}

	f := factory.NewTemplateFactory()
	tmpl, err := f.FromDef(sc.Template)
	if err != nil {
		return err
	}
	if err := tmpl.Publish(); err != nil {
		return err
	}

	mem := store.NewMemory()
	if err := mem.SaveTemplate(ctx, *tmpl); err != nil {
		return err
	}
	for _, def := range sc.TaxRules {
		if def.Jurisdiction == "" {
			def.Jurisdiction = sc.Jurisdiction
		}
		if def.EffectiveFrom == "" {
			def.EffectiveFrom = asOf.Format(time.DateOnly)
		}
		rs, err := f.FromTaxDef(def)
		if err != nil {
			return err
		}
		if err := mem.SaveTaxRuleSet(ctx, *rs); err != nil {
			return err
		}
	}

	for _, w := range sc.Workers {
		assignment := engine.WorkerStructureAssignment{
			ID:            "assign-" + w.ID,
			OrgID:         engine.OrgID(sc.OrgID),
			WorkerID:      engine.WorkerID(w.ID),
			TemplateID:    tmpl.ID,
			Version:       tmpl.Version,
			EffectiveFrom: asOf.AddDate(-1, 0, 0),
		}
		if w.BaseSalary != nil {
			m := engine.MoneyFromFloat(*w.BaseSalary)
			assignment.BaseSalary = &m
		}
		if w.HourlyRate != nil {
			m := engine.MoneyFromFloat(*w.HourlyRate)
			assignment.HourlyRate = &m
		}
		if err := mem.CreateAssignment(ctx, assignment); err != nil {
			return err
		}
	}

	eng := engine.New(mem, engine.Collaborators{
		Allowances: &engine.StandardAllowances{
			AnnualAllowance: engine.MoneyFromFloat(sc.AnnualAllowance),
		},
	})

	for _, w := range sc.Workers {
		req := engine.CalculateRequest{
			OrgID:        engine.OrgID(sc.OrgID),
			WorkerID:     engine.WorkerID(w.ID),
			AsOf:         asOf,
			Period:       period,
			Jurisdiction: sc.Jurisdiction,
			Resident:     w.Resident == nil || *w.Resident,
			HoursWorked:  engine.MoneyFromFloat(w.HoursWorked),
		}
		if len(w.Extra) > 0 {
			req.Extra = make(map[string]engine.Money, len(w.Extra))
			for name, v := range w.Extra {
				req.Extra[name] = engine.MoneyFromFloat(v)
			}
		}

		result, err := eng.CalculateWorker(ctx, req)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "worker %s: FAILED: %v\n", w.ID, err)
			continue
		}
		printResult(cmd, result)
	}
	return nil
}

func printResult(cmd *cobra.Command, result *engine.CalculationResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nWorker %s (template %s v%s)\n",
		result.WorkerID, result.StructureID, result.TemplateVersion)
	for _, line := range result.Calculations {
		fmt.Fprintf(out, "  %-12s %-24s %12s\n", line.Category, line.Name, line.Amount.StringFixed(2))
	}
	if result.Taxes != nil {
		for taxType, total := range result.Taxes.Summary.TotalByType {
			fmt.Fprintf(out, "  %-12s %-24s %12s\n", "tax", taxType, total.StringFixed(2))
		}
		for _, warning := range result.Taxes.Summary.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", warning)
		}
	}
	s := result.Summary
	fmt.Fprintf(out, "  earnings %s  deductions %s  taxes %s  net %s\n",
		s.TotalEarnings.StringFixed(2), s.TotalDeductions.StringFixed(2),
		s.TotalTaxes.StringFixed(2), s.NetPay.StringFixed(2))
}

// =============================================================================
// VALIDATE
// =============================================================================

func validateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a template definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			tmpl, err := factory.NewTemplateFactory().ParseTemplateYAML(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %s v%s, %d components\n",
				tmpl.TemplateCode, tmpl.Version, len(tmpl.Components))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "template YAML file")
	cmd.MarkFlagRequired("file")
	return cmd
}

// =============================================================================
// FORMULA
// =============================================================================

func formulaCmd() *cobra.Command {
	var vars string

	cmd := &cobra.Command{
		Use:   "formula EXPRESSION",
		Short: "Statically validate a formula expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var names []string
			if vars != "" {
				names = strings.Split(vars, ",")
			}
			report := engine.NewFormulaEvaluator().Validate(args[0], names)
			out := cmd.OutOrStdout()
			if report.Valid {
				fmt.Fprintln(out, "OK")
			}
			for _, e := range report.Errors {
				fmt.Fprintln(out, "error:", e)
			}
			for _, w := range report.Warnings {
				fmt.Fprintln(out, "warning:", w)
			}
			if !report.Valid {
				return fmt.Errorf("formula is invalid")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&vars, "vars", "", "comma-separated variable names")
	return cmd
}

/*
aggregate.go - Result aggregation and the produced contract

PURPOSE:
  Rolls calculation lines and tax results into category totals and net
  pay, producing the structure handed to the payroll-run orchestrator:

    { structureId, templateVersion,
      calculations: [{componentCode, componentCategory, amount, metadata}],
      summary: {totalEarnings, totalDeductions, totalTaxes, netPay} }

TOTALS:
  totalEarnings   sum of earning lines, optionally filtered to an
                  allowed-component set supplied by the orchestrator.
                  Deductions and taxes are NEVER part of this
                  recomputation - that would double count.
  totalDeductions sum of deduction lines
  totalTaxes      tax-category lines plus the apportioned tax total
  netPay          totalEarnings - totalDeductions - totalTaxes
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is the category roll-up of one worker's calculation.
type Summary struct {
	TotalEarnings   Money
	TotalDeductions Money
	TotalTaxes      Money
	NetPay          Money
}

// Aggregate computes the summary from calculation lines and an optional
// tax result. allowedEarnings, when non-nil, restricts which earning
// components count toward totalEarnings (an orchestrator-supplied filter
// for partial-run recomputation); deduction and tax lines are excluded
// from that filter unconditionally.
func Aggregate(lines []CalculationLine, taxes *TaxResult, allowedEarnings []ComponentCode) Summary {
	var allowed map[ComponentCode]bool
	if allowedEarnings != nil {
		allowed = make(map[ComponentCode]bool, len(allowedEarnings))
		for _, code := range allowedEarnings {
			allowed[code] = true
		}
	}

	s := Summary{}
	for _, line := range lines {
		switch line.Category {
		case CategoryEarning:
			if allowed != nil && !allowed[line.Code] {
				continue
			}
			s.TotalEarnings = s.TotalEarnings.Add(line.Amount)
		case CategoryDeduction:
			s.TotalDeductions = s.TotalDeductions.Add(line.Amount)
		case CategoryTax:
			s.TotalTaxes = s.TotalTaxes.Add(line.Amount)
		}
		// benefit / employer_cost / reimbursement lines appear in the
		// calculations output but do not enter the net-pay formula.
	}

	if taxes != nil {
		s.TotalTaxes = s.TotalTaxes.Add(taxes.Summary.TotalTax)
	}

	s.NetPay = s.TotalEarnings.Sub(s.TotalDeductions).Sub(s.TotalTaxes)
	return s
}

// =============================================================================
// CALCULATION RESULT - the produced contract
// =============================================================================

// CalculationResult is the engine's full output for one worker and one
// pay period: the deterministic input to payslip rendering and payment.
type CalculationResult struct {
	WorkerID        WorkerID
	StructureID     TemplateID
	TemplateVersion string

	Calculations []CalculationLine
	Taxes        *TaxResult
	Summary      Summary
}

// GrossEarnings returns the sum of gross-affecting earning lines.
func (r *CalculationResult) GrossEarnings() Money {
	total := decimal.Zero
	for _, l := range r.Calculations {
		if l.Category == CategoryEarning && l.AffectsGrossPay {
			total = total.Add(l.Amount)
		}
	}
	return total
}

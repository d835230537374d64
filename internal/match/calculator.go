// Package match inverts amortization math to recover the rate a user is
// paying, queries the product catalog for a cheaper rate, and records the
// resulting offer.
package match

import (
	"fmt"
	"math"
)

// Amortization systems.
const (
	SystemPrice = "PRICE"
	SystemSAC   = "SAC"
)

const (
	priceTolerance  = 1e-6
	priceIterations = 100
)

// PricePayment is the PRICE installment for principal pv at monthly rate i
// (fraction) over n installments. i = 0 degenerates to pv/n.
func PricePayment(pv float64, i float64, n int) float64 {
	if i == 0 {
		return pv / float64(n)
	}
	pow := math.Pow(1+i, float64(n))
	return pv * (i * pow) / (pow - 1)
}

// PriceRate recovers the monthly rate (percent) behind a PRICE contract by
// bisection on [0, 1].
func PriceRate(totalValue float64, installmentCount int, installmentAmount float64) (float64, error) {
	if totalValue <= 0 || installmentCount <= 0 || installmentAmount <= 0 {
		return 0, fmt.Errorf("invalid PRICE inputs: pv=%v n=%d pmt=%v", totalValue, installmentCount, installmentAmount)
	}

	lower, upper := 0.0, 1.0
	for iter := 0; iter < priceIterations; iter++ {
		mid := (lower + upper) / 2
		pmt := PricePayment(totalValue, mid, installmentCount)

		if math.Abs(pmt-installmentAmount) < priceTolerance {
			return mid * 100, nil
		}
		if pmt < installmentAmount {
			lower = mid
		} else {
			upper = mid
		}
	}
	return (lower + upper) / 2 * 100, nil
}

// SACRate recovers the monthly rate (percent) behind a SAC contract in closed
// form from the current installment.
func SACRate(totalValue float64, installmentCount, currentInstallment int, installmentAmount float64) (float64, error) {
	if totalValue <= 0 || installmentCount <= 0 {
		return 0, fmt.Errorf("invalid SAC inputs: pv=%v n=%d", totalValue, installmentCount)
	}

	amortization := totalValue / float64(installmentCount)
	remainingInstallments := installmentCount - currentInstallment + 1
	currentBalance := amortization * float64(remainingInstallments)
	if currentBalance <= 0 {
		return 0, fmt.Errorf("non-positive remaining balance for %d/%d", currentInstallment, installmentCount)
	}

	interestPortion := installmentAmount - amortization
	return interestPortion / currentBalance * 100, nil
}

// RemainingBalance is the outstanding principal used for savings math.
// ratePercent is the monthly rate in percent.
func RemainingBalance(system string, totalValue float64, installmentCount, currentInstallment int, ratePercent, installmentAmount float64) float64 {
	remainingInstallments := installmentCount - currentInstallment + 1

	if system == SystemSAC {
		amortization := totalValue / float64(installmentCount)
		return amortization * float64(remainingInstallments)
	}

	r := ratePercent / 100
	if r == 0 {
		return installmentAmount * float64(remainingInstallments)
	}
	return installmentAmount * (1 - math.Pow(1+r, -float64(remainingInstallments))) / r
}

// PotentialSavings is the interest saved by refinancing the remaining balance
// at the new rate, floored at zero. Rates in monthly percent.
func PotentialSavings(remainingAmount float64, remainingInstallments int, currentRate, newRate float64) float64 {
	savings := remainingAmount * (currentRate - newRate) / 100 * float64(remainingInstallments)
	return math.Max(0, savings)
}

// Package quantity implements the planned/actual/good/defect arithmetic applied to
// work orders. Everything here is pure.
package quantity

import (
	"fmt"

	"github.com/shopspring/decimal"

	"mes-execution-backend/internal/apperr"
)

// Scale is the number of decimal places of the decimal(12,4) quantity columns.
const Scale = 4

var (
	hundred = decimal.NewFromInt(100)
	// MaxQuantity is the exclusive upper bound of a stored quantity.
	MaxQuantity = decimal.New(1, 8)
)

// CheckScale rejects a quantity the quantity columns cannot store exactly.
func CheckScale(v decimal.Decimal, field string) error {
	if !v.Equal(v.Truncate(Scale)) {
		return apperr.Validation(field, "%s has more than %d decimal places", v, Scale)
	}
	if v.Abs().GreaterThanOrEqual(MaxQuantity) {
		return apperr.Validation(field, "%s must be below %s", v, MaxQuantity)
	}
	return nil
}

// Triple is an (actual, good, defect) quantity set.
type Triple struct {
	Actual decimal.Decimal `json:"actual"`
	Good   decimal.Decimal `json:"good"`
	Defect decimal.Decimal `json:"defect"`
}

// NewTriple builds a balanced triple from good and defect quantities.
func NewTriple(good, defect decimal.Decimal) Triple {
	return Triple{Actual: good.Add(defect), Good: good, Defect: defect}
}

// Negate returns the compensating triple.
func (t Triple) Negate() Triple {
	return Triple{Actual: t.Actual.Neg(), Good: t.Good.Neg(), Defect: t.Defect.Neg()}
}

// Sub returns t - o component-wise.
func (t Triple) Sub(o Triple) Triple {
	return Triple{Actual: t.Actual.Sub(o.Actual), Good: t.Good.Sub(o.Good), Defect: t.Defect.Sub(o.Defect)}
}

// IsZero reports whether every component is zero.
func (t Triple) IsZero() bool {
	return t.Actual.IsZero() && t.Good.IsZero() && t.Defect.IsZero()
}

// Balanced reports whether Actual == Good + Defect.
func (t Triple) Balanced() bool {
	return t.Good.Add(t.Defect).Equal(t.Actual)
}

// Tolerance is the over-production policy for a work order.
type Tolerance struct {
	// Quantity is an absolute allowance on top of the planned quantity.
	Quantity decimal.Decimal
	// Percent is a relative allowance, in percent of the planned quantity.
	Percent decimal.Decimal
	// WarnOnly accepts over-production and reports it instead of failing.
	WarnOnly bool
}

// Limit returns the highest accepted actual quantity for the planned quantity.
func (tol Tolerance) Limit(planned decimal.Decimal) decimal.Decimal {
	return planned.Add(tol.Quantity).Add(planned.Mul(tol.Percent).Div(hundred))
}

// Overrun describes an accepted over-production under a warn-only tolerance.
type Overrun struct {
	Limit  decimal.Decimal `json:"limit"`
	Actual decimal.Decimal `json:"actual"`
	Excess decimal.Decimal `json:"excess"`
}

func (o Overrun) String() string {
	return fmt.Sprintf("actual quantity %s exceeds limit %s by %s", o.Actual, o.Limit, o.Excess)
}

// Apply adds delta to current. It fails when delta is unbalanced, when any
// resulting component is negative or not storable, or when the resulting actual
// quantity exceeds the planned quantity plus tolerance and the tolerance is strict.
func Apply(current, delta Triple, planned decimal.Decimal, tol Tolerance) (Triple, *Overrun, error) {
	if !delta.Balanced() {
		return current, nil, apperr.Validation("quantity",
			"quantity %s must equal good %s + defect %s", delta.Actual, delta.Good, delta.Defect)
	}

	updated := Triple{
		Actual: current.Actual.Add(delta.Actual),
		Good:   current.Good.Add(delta.Good),
		Defect: current.Defect.Add(delta.Defect),
	}
	for _, c := range []struct {
		field string
		v     decimal.Decimal
	}{{"quantity", updated.Actual}, {"goodQuantity", updated.Good}, {"defectQuantity", updated.Defect}} {
		if err := CheckScale(c.v, c.field); err != nil {
			return current, nil, err
		}
	}

	switch {
	case updated.Good.IsNegative():
		return current, nil, apperr.Validation("goodQuantity", "good quantity would become negative (%s)", updated.Good)
	case updated.Defect.IsNegative():
		return current, nil, apperr.Validation("defectQuantity", "defect quantity would become negative (%s)", updated.Defect)
	case updated.Actual.IsNegative():
		return current, nil, apperr.Validation("quantity", "actual quantity would become negative (%s)", updated.Actual)
	}

	limit := tol.Limit(planned)
	if updated.Actual.GreaterThan(limit) {
		overrun := &Overrun{Limit: limit, Actual: updated.Actual, Excess: updated.Actual.Sub(limit)}
		if !tol.WarnOnly {
			return current, nil, apperr.Validation("quantity",
				"actual quantity %s would exceed planned quantity %s plus tolerance (limit %s)",
				updated.Actual, planned, limit)
		}
		return updated, overrun, nil
	}
	return updated, nil, nil
}

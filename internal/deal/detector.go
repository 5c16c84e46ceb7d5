// Package deal decides whether a price observation is worth announcing.
package deal

import (
	"fmt"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/shopspring/decimal"
)

// Evaluate applies the deal rules to one observation and returns the decision
// together with the next state. The input state is never modified.
//
// Rules, in order:
//  1. no qualifying price: suppress, state unchanged.
//  2. no threshold: notify only on a new minimum versus the best price seen.
//  3. threshold set and price <= threshold: notify unless the last notified
//     price is already <= price; a notify records the price as last notified.
//  4. best price seen becomes min(best, price) on every priced observation.
func Evaluate(obs model.PriceObservation, state model.DealState, threshold *decimal.Decimal, now time.Time) (model.Decision, model.DealState) {
	next := model.DealState{
		BestPriceSeen:     clone(state.BestPriceSeen),
		LastNotifiedPrice: clone(state.LastNotifiedPrice),
		UpdatedAt:         state.UpdatedAt,
	}
	decision := model.Decision{
		Verdict:      model.VerdictSuppress,
		Threshold:    clone(threshold),
		PreviousBest: clone(state.BestPriceSeen),
	}

	if !obs.HasPrice() {
		decision.Reason = "no qualifying price"
		return decision, next
	}
	price := *obs.MinPrice

	if state.BestPriceSeen != nil && price.LessThan(*state.BestPriceSeen) {
		decision.Improvement = state.BestPriceSeen.Sub(price)
	}

	switch {
	case threshold == nil:
		if state.BestPriceSeen == nil {
			decision.Verdict = model.VerdictNotify
			decision.Reason = fmt.Sprintf("first price observed: %s %s", price.StringFixed(2), obs.Currency)
		} else if price.LessThan(*state.BestPriceSeen) {
			decision.Verdict = model.VerdictNotify
			decision.Reason = fmt.Sprintf("price dropped from %s to %s %s", state.BestPriceSeen.StringFixed(2), price.StringFixed(2), obs.Currency)
		} else {
			decision.Reason = fmt.Sprintf("no new minimum (best %s)", state.BestPriceSeen.StringFixed(2))
		}
	case price.LessThanOrEqual(*threshold):
		if state.LastNotifiedPrice != nil && state.LastNotifiedPrice.LessThanOrEqual(price) {
			decision.Reason = fmt.Sprintf("already notified at %s", state.LastNotifiedPrice.StringFixed(2))
			break
		}
		decision.Verdict = model.VerdictNotify
		if state.LastNotifiedPrice != nil {
			decision.Improvement = state.LastNotifiedPrice.Sub(price)
			decision.Reason = fmt.Sprintf("price improved from %s to %s %s (threshold %s)",
				state.LastNotifiedPrice.StringFixed(2), price.StringFixed(2), obs.Currency, threshold.StringFixed(2))
		} else {
			decision.Reason = fmt.Sprintf("price reached target <= %s: %s %s", threshold.StringFixed(2), price.StringFixed(2), obs.Currency)
		}
		next.LastNotifiedPrice = &price
	default:
		decision.Reason = fmt.Sprintf("price %s above threshold %s", price.StringFixed(2), threshold.StringFixed(2))
	}

	if next.BestPriceSeen == nil || price.LessThan(*next.BestPriceSeen) {
		p := price
		next.BestPriceSeen = &p
	}
	next.UpdatedAt = now.UTC()
	return decision, next
}

// DropPercent is the relative improvement of price against previous, in percent.
func DropPercent(previous *decimal.Decimal, price decimal.Decimal) decimal.Decimal {
	if previous == nil || !previous.IsPositive() || !price.LessThan(*previous) {
		return decimal.Zero
	}
	return previous.Sub(price).Div(*previous).Mul(decimal.NewFromInt(100)).Round(1)
}

func clone(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

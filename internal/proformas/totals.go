package proformas

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Totals returns the item sum and what is left after the deposit. An empty
// list totals zero.
func Totals(items []Item, deposit decimal.Decimal) (total, remaining decimal.Decimal) {
	total = decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total, total.Sub(deposit)
}

// Number formats the n-th invoice of a day, e.g. PRO-20240131-007.
func Number(day string, n int64) string {
	return fmt.Sprintf("PRO-%s-%03d", day, n)
}

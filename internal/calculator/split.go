package calculator

import (
	"github.com/mmynk/receiptsplit/internal/models"
)

// personTally accumulates one person's item shares before shared charges are applied.
type personTally struct {
	items    []models.PersonItem
	subtotal float64
}

// CalculateSplits computes how much each person owes, including proportional
// tax and service charge.
//
// Algorithm:
//   - each attributed item is divided evenly among its people
//   - person_subtotal = sum of their item shares
//   - proportion = person_subtotal / receipt_subtotal, where receipt_subtotal is the
//     declared subtotal if present and non-zero, otherwise the sum of item prices
//   - person_tax = receipt_tax × proportion, likewise for service charge
//
// Every person in people gets an entry, in roster order, even with nothing
// attributed. Attributions naming unknown people or out-of-range items are
// ignored, as are unattributed items.
func CalculateSplits(receipt models.Receipt, people []models.Person, attributions []models.ItemAttribution) []models.PersonSplit {
	tallies := make(map[string]*personTally, len(people))
	for _, p := range people {
		tallies[p.ID] = &personTally{items: []models.PersonItem{}}
	}

	for _, attribution := range attributions {
		if len(attribution.PersonIDs) == 0 {
			continue
		}
		if attribution.ItemIndex < 0 || attribution.ItemIndex >= len(receipt.Items) {
			continue
		}

		item := receipt.Items[attribution.ItemIndex]
		splitters := len(attribution.PersonIDs)
		perPersonAmount := item.Price() / float64(splitters)

		for _, personID := range attribution.PersonIDs {
			tally, exists := tallies[personID]
			if !exists {
				continue
			}
			tally.items = append(tally.items, models.PersonItem{
				Description:    item.Description,
				Amount:         perPersonAmount,
				OriginalAmount: item.Price(),
				Splitters:      splitters,
			})
			tally.subtotal += perPersonAmount
		}
	}

	subtotal := models.ValueOf(receipt.Subtotal)
	if subtotal == 0 {
		subtotal = receipt.ItemsTotal()
	}
	tax := models.ValueOf(receipt.Tax)
	serviceCharge := models.ValueOf(receipt.ServiceCharge)

	splits := make([]models.PersonSplit, 0, len(people))
	for _, person := range people {
		tally := tallies[person.ID]

		var proportion float64
		if subtotal > 0 {
			proportion = tally.subtotal / subtotal
		}
		taxShare := tax * proportion
		serviceShare := serviceCharge * proportion

		splits = append(splits, models.PersonSplit{
			Person:        person,
			Items:         tally.items,
			Subtotal:      tally.subtotal,
			Tax:           taxShare,
			ServiceCharge: serviceShare,
			Total:         tally.subtotal + taxShare + serviceShare,
		})
	}

	return splits
}

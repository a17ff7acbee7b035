package calculator

import (
	"math"

	"github.com/mmynk/receiptsplit/internal/models"
)

// Settle lists what everyone owes the person who paid the receipt.
// Each non-payer with a total of at least a cent owes that total, rounded to
// cents. It returns nil when payerID is not among the splits.
func Settle(splits []models.PersonSplit, payerID string) []models.Transfer {
	if !hasPerson(splits, payerID) {
		return nil
	}

	transfers := make([]models.Transfer, 0, len(splits))
	for _, split := range splits {
		if split.Person.ID == payerID {
			continue
		}
		amount := roundCents(split.Total)
		if amount < 0.01 { // Avoid floating point noise
			continue
		}
		transfers = append(transfers, models.Transfer{
			From:   split.Person.ID,
			To:     payerID,
			Amount: amount,
		})
	}
	return transfers
}

// Sum returns the combined total of all splits.
func Sum(splits []models.PersonSplit) float64 {
	var total float64
	for _, split := range splits {
		total += split.Total
	}
	return total
}

func hasPerson(splits []models.PersonSplit, personID string) bool {
	if personID == "" {
		return false
	}
	for _, split := range splits {
		if split.Person.ID == personID {
			return true
		}
	}
	return false
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

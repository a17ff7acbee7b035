package service

import (
	"fmt"

	"github.com/mmynk/receiptsplit/internal/models"
)

// validateAttributions rejects entries that point outside the receipt,
// repeat an item, or name a person twice on one item. The store keeps at
// most one entry per item and each person counts once as a splitter.
func validateAttributions(attributions []models.ItemAttribution, itemCount int) error {
	seen := make(map[int]bool, len(attributions))
	for _, a := range attributions {
		if a.ItemIndex < 0 || a.ItemIndex >= itemCount {
			return fmt.Errorf("itemIndex %d is out of range", a.ItemIndex)
		}
		if seen[a.ItemIndex] {
			return fmt.Errorf("itemIndex %d is attributed more than once", a.ItemIndex)
		}
		seen[a.ItemIndex] = true

		assigned := make(map[string]bool, len(a.PersonIDs))
		for _, id := range a.PersonIDs {
			if assigned[id] {
				return fmt.Errorf("person id '%s' is repeated on itemIndex %d", id, a.ItemIndex)
			}
			assigned[id] = true
		}
	}
	return nil
}

// validatePeople rejects missing or duplicate person IDs.
func validatePeople(people []models.Person) error {
	seen := make(map[string]bool, len(people))
	for _, p := range people {
		if p.ID == "" {
			return fmt.Errorf("person id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("person id '%s' is duplicated", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// validatePayerID checks if the payer is one of the people.
func validatePayerID(payerID string, people []models.Person) error {
	if payerID == "" {
		return nil // Optional field
	}
	for _, p := range people {
		if p.ID == payerID {
			return nil
		}
	}
	return fmt.Errorf("payerId '%s' must be one of the people", payerID)
}

package models

// PersonItem represents an item's share for one person.
type PersonItem struct {
	Description    string  `json:"description"`
	Amount         float64 `json:"amount"`         // This person's share of the item
	OriginalAmount float64 `json:"originalAmount"` // The item's full price
	Splitters      int     `json:"splitters"`      // How many people share the item
}

// PersonSplit represents one person's calculated share of a receipt.
// This is the output of the split calculation and is recomputed on demand.
type PersonSplit struct {
	Person Person `json:"person"`

	// Items are the items this person shares, with their share amounts.
	Items []PersonItem `json:"items"`

	// Subtotal is the sum of this person's item shares.
	Subtotal float64 `json:"subtotal"`

	// Tax is this person's proportional share of the receipt's tax.
	// Calculated as: receipt_tax × (subtotal / receipt_subtotal)
	Tax float64 `json:"tax"`

	// ServiceCharge is this person's proportional share of the service charge.
	ServiceCharge float64 `json:"serviceCharge"`

	// Total is the final amount this person owes.
	Total float64 `json:"total"`
}

// Transfer is a payment a person owes to whoever paid the receipt.
type Transfer struct {
	From   string  `json:"from"` // Person ID who owes
	To     string  `json:"to"`   // Person ID of the payer
	Amount float64 `json:"amount"`
}

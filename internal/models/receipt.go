package models

// Receipt is the structured form of one scanned receipt.
// It is produced once per scan, may be edited during review, and is replaced
// wholesale on a new scan.
type Receipt struct {
	// Items are the purchased entries in the order they appear on the receipt.
	// ItemAttribution.ItemIndex refers to positions in this slice.
	Items []LineItem `json:"items"`

	// Subtotal is the declared pre-tax amount, if printed on the receipt.
	Subtotal *float64 `json:"subtotal,omitempty"`

	// Tax is the declared tax (tax, VAT, GST) amount.
	Tax *float64 `json:"tax,omitempty"`

	// ServiceCharge is the declared service charge, tip, or gratuity.
	ServiceCharge *float64 `json:"serviceCharge,omitempty"`

	// Total is the declared final amount.
	Total *float64 `json:"total,omitempty"`

	EstablishmentName string `json:"establishmentName,omitempty"`
	Date              string `json:"date,omitempty"`
	Address           string `json:"address,omitempty"`
	PhoneNumber       string `json:"phoneNumber,omitempty"`
}

// LineItem represents a single line item on a receipt.
// When Quantity and UnitPrice are both set, TotalPrice is expected to equal
// their product; the validator checks this, the parser does not.
type LineItem struct {
	// Description is the item name with recognition noise stripped.
	Description string `json:"description"`

	// Quantity is the leading count on the receipt line, if any.
	Quantity *float64 `json:"quantity,omitempty"`

	// UnitPrice is TotalPrice divided by Quantity, rounded to cents.
	UnitPrice *float64 `json:"unitPrice,omitempty"`

	// TotalPrice is the price printed on the line. Nil only after a user edit
	// cleared it.
	TotalPrice *float64 `json:"totalPrice,omitempty"`
}

// Amount returns a pointer to v, for populating optional amount fields.
func Amount(v float64) *float64 {
	return &v
}

// ValueOf returns the pointed-to amount, or 0 when absent.
func ValueOf(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Price returns the item's total price, treating an absent price as 0.
func (i LineItem) Price() float64 {
	return ValueOf(i.TotalPrice)
}

// ItemsTotal returns the sum of all item prices.
func (r Receipt) ItemsTotal() float64 {
	var sum float64
	for _, item := range r.Items {
		sum += item.Price()
	}
	return sum
}

// Clone returns a deep copy of the receipt.
func (r Receipt) Clone() Receipt {
	out := r
	out.Subtotal = cloneAmount(r.Subtotal)
	out.Tax = cloneAmount(r.Tax)
	out.ServiceCharge = cloneAmount(r.ServiceCharge)
	out.Total = cloneAmount(r.Total)
	if r.Items != nil {
		out.Items = make([]LineItem, len(r.Items))
		for i, item := range r.Items {
			out.Items[i] = LineItem{
				Description: item.Description,
				Quantity:    cloneAmount(item.Quantity),
				UnitPrice:   cloneAmount(item.UnitPrice),
				TotalPrice:  cloneAmount(item.TotalPrice),
			}
		}
	}
	return out
}

func cloneAmount(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

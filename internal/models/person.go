package models

// Person is someone sharing the cost of a receipt.
type Person struct {
	// ID is the unique identifier for the person (UUID format), generated when
	// the person is added.
	ID string `json:"id"`

	// Name is free text and need not be unique.
	Name string `json:"name"`
}

// ItemAttribution assigns one receipt item to the people sharing it.
// At most one attribution exists per ItemIndex.
type ItemAttribution struct {
	// ItemIndex is the position of the item in Receipt.Items.
	ItemIndex int `json:"itemIndex"`

	// PersonIDs are the Person.ID values sharing the item. Empty means the item
	// is unattributed.
	PersonIDs []string `json:"personIds"`
}

// ClonePeople returns a copy of people.
func ClonePeople(people []Person) []Person {
	if people == nil {
		return nil
	}
	out := make([]Person, len(people))
	copy(out, people)
	return out
}

// CloneAttributions returns a deep copy of attributions.
func CloneAttributions(attributions []ItemAttribution) []ItemAttribution {
	if attributions == nil {
		return nil
	}
	out := make([]ItemAttribution, len(attributions))
	for i, a := range attributions {
		ids := make([]string, len(a.PersonIDs))
		copy(ids, a.PersonIDs)
		out[i] = ItemAttribution{ItemIndex: a.ItemIndex, PersonIDs: ids}
	}
	return out
}

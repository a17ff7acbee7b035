// Package ledger holds a client's working copy of a receipt split: the
// reviewed receipt, the roster of people, and which people share each item.
//
// A Ledger is not safe for concurrent use; callers that share one across
// goroutines must guard it.
package ledger

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/mmynk/receiptsplit/internal/calculator"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/validation"
)

var (
	ErrNoReceipt      = errors.New("no receipt loaded")
	ErrItemOutOfRange = errors.New("item index out of range")
	ErrPersonNotFound = errors.New("person not found")
	ErrBlockingIssues = errors.New("receipt has blocking validation issues")
)

// UnattributedError reports the items that still have nobody assigned.
type UnattributedError struct {
	Indices []int
}

func (e *UnattributedError) Error() string {
	return fmt.Sprintf("%d item(s) haven't been assigned to anyone", len(e.Indices))
}

// Ledger is the working state of one receipt split.
type Ledger struct {
	receipt      *models.Receipt
	people       []models.Person
	attributions []models.ItemAttribution
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// SetReceipt replaces the receipt wholesale. Attributions refer to item
// positions of the previous receipt, so they are cleared.
func (l *Ledger) SetReceipt(receipt models.Receipt) {
	r := receipt.Clone()
	l.receipt = &r
	l.attributions = nil
}

// UpdateReceipt replaces the receipt while keeping attributions, for review
// edits that do not add or remove items.
func (l *Ledger) UpdateReceipt(receipt models.Receipt) error {
	if l.receipt != nil && len(receipt.Items) != len(l.receipt.Items) {
		return fmt.Errorf("item count changed from %d to %d: use SetReceipt", len(l.receipt.Items), len(receipt.Items))
	}
	r := receipt.Clone()
	l.receipt = &r
	return nil
}

// Receipt returns a copy of the receipt and whether one is loaded.
func (l *Ledger) Receipt() (models.Receipt, bool) {
	if l.receipt == nil {
		return models.Receipt{}, false
	}
	return l.receipt.Clone(), true
}

// People returns a copy of the roster.
func (l *Ledger) People() []models.Person {
	return models.ClonePeople(l.people)
}

// Attributions returns a copy of all attributions.
func (l *Ledger) Attributions() []models.ItemAttribution {
	return models.CloneAttributions(l.attributions)
}

// AddPerson adds a person with a freshly generated ID.
func (l *Ledger) AddPerson(name string) models.Person {
	person := models.Person{ID: uuid.New().String(), Name: name}
	l.people = append(l.people, person)
	return person
}

// RenamePerson changes a person's display name.
func (l *Ledger) RenamePerson(id, name string) error {
	for i := range l.people {
		if l.people[i].ID == id {
			l.people[i].Name = name
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrPersonNotFound, id)
}

// RemovePerson removes a person and filters their ID out of every
// attribution. Attribution entries themselves are kept, possibly empty.
func (l *Ledger) RemovePerson(id string) error {
	idx := slices.IndexFunc(l.people, func(p models.Person) bool { return p.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrPersonNotFound, id)
	}
	l.people = slices.Delete(l.people, idx, idx+1)

	for i := range l.attributions {
		l.attributions[i].PersonIDs = slices.DeleteFunc(l.attributions[i].PersonIDs, func(pid string) bool {
			return pid == id
		})
	}
	return nil
}

// Attribute sets the people sharing an item, replacing any earlier
// attribution for the same index. Duplicate IDs are collapsed.
func (l *Ledger) Attribute(itemIndex int, personIDs []string) error {
	if l.receipt == nil {
		return ErrNoReceipt
	}
	if itemIndex < 0 || itemIndex >= len(l.receipt.Items) {
		return fmt.Errorf("%w: %d", ErrItemOutOfRange, itemIndex)
	}

	ids := make([]string, 0, len(personIDs))
	for _, id := range personIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	attribution := models.ItemAttribution{ItemIndex: itemIndex, PersonIDs: ids}
	if i := l.attributionIndex(itemIndex); i >= 0 {
		l.attributions[i] = attribution
	} else {
		l.attributions = append(l.attributions, attribution)
	}
	return nil
}

// PersonIDs returns the people sharing an item, or nil.
func (l *Ledger) PersonIDs(itemIndex int) []string {
	if i := l.attributionIndex(itemIndex); i >= 0 {
		return slices.Clone(l.attributions[i].PersonIDs)
	}
	return nil
}

// IsAttributed reports whether at least one person shares the item.
func (l *Ledger) IsAttributed(itemIndex int) bool {
	return len(l.PersonIDs(itemIndex)) > 0
}

// Unattributed returns the indices of items nobody shares.
func (l *Ledger) Unattributed() []int {
	if l.receipt == nil {
		return nil
	}
	var out []int
	for i := range l.receipt.Items {
		if !l.IsAttributed(i) {
			out = append(out, i)
		}
	}
	return out
}

// Issues validates the current receipt.
func (l *Ledger) Issues() []models.ValidationIssue {
	if l.receipt == nil {
		return nil
	}
	return validation.Validate(*l.receipt)
}

// ReadyForSplit reports why the split cannot be calculated yet, or nil.
// Blocking validation issues and unattributed items are both user-correctable.
func (l *Ledger) ReadyForSplit() error {
	if l.receipt == nil {
		return ErrNoReceipt
	}
	if validation.HasBlockingIssues(l.Issues()) {
		return ErrBlockingIssues
	}
	if missing := l.Unattributed(); len(missing) > 0 {
		return &UnattributedError{Indices: missing}
	}
	return nil
}

// Splits calculates every person's share from the current state.
func (l *Ledger) Splits() []models.PersonSplit {
	if l.receipt == nil {
		return nil
	}
	return calculator.CalculateSplits(*l.receipt, l.people, l.attributions)
}

// Adopt replaces the whole state with a session snapshot, discarding any
// local-only people or attributions.
func (l *Ledger) Adopt(session *models.SharedSession) {
	r := session.Receipt.Clone()
	l.receipt = &r
	l.people = models.ClonePeople(session.People)
	l.attributions = models.CloneAttributions(session.Attributions)
}

// Reconcile overwrites people and attributions with the authoritative copy,
// keeping the receipt.
func (l *Ledger) Reconcile(people []models.Person, attributions []models.ItemAttribution) {
	l.people = models.ClonePeople(people)
	l.attributions = models.CloneAttributions(attributions)
}

// Clear drops the receipt, people and attributions.
func (l *Ledger) Clear() {
	l.receipt = nil
	l.people = nil
	l.attributions = nil
}

func (l *Ledger) attributionIndex(itemIndex int) int {
	return slices.IndexFunc(l.attributions, func(a models.ItemAttribution) bool {
		return a.ItemIndex == itemIndex
	})
}

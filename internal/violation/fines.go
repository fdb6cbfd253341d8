package violation

import "fmt"

// Fixed per-tag fines.
const (
	FineNoHelmet        = 500
	FineTripleRiding    = 1000
	FineNoLicensePlate  = 300
	FineRedLightJumping = 800
)

// FineTable prices violation tags. It is built once at startup and only read
// afterwards.
type FineTable struct {
	amounts map[Tag]int
}

// DefaultFineTable returns the standard fine schedule.
func DefaultFineTable() *FineTable {
	return &FineTable{amounts: map[Tag]int{
		NoHelmet:        FineNoHelmet,
		TripleRiding:    FineTripleRiding,
		NoLicensePlate:  FineNoLicensePlate,
		RedLightJumping: FineRedLightJumping,
		NoViolation:     0,
	}}
}

// NewFineTable builds a table from overrides keyed by tag name (display name
// or snake_case). Tags not overridden keep their default amount.
func NewFineTable(overrides map[string]int) (*FineTable, error) {
	t := DefaultFineTable()
	for name, amount := range overrides {
		tag, err := ParseTag(name)
		if err != nil {
			return nil, &ConfigurationError{Tag: Tag(name), Reason: "not a known violation"}
		}
		if tag == NoViolation && amount != 0 {
			return nil, &ConfigurationError{Tag: tag, Reason: "must be priced at 0"}
		}
		t.amounts[tag] = amount
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every classifier tag has a non-negative price.
func (t *FineTable) Validate() error {
	required := make([]Tag, 0, len(ViolationTags)+1)
	required = append(required, ViolationTags...)
	required = append(required, NoViolation)
	for _, tag := range required {
		amount, ok := t.amounts[tag]
		if !ok {
			return &ConfigurationError{Tag: tag, Reason: "missing from fine table"}
		}
		if amount < 0 {
			return &ConfigurationError{Tag: tag, Reason: fmt.Sprintf("negative fine %d", amount)}
		}
	}
	return nil
}

// Amount returns the fine for a single tag.
func (t *FineTable) Amount(tag Tag) (int, bool) {
	a, ok := t.amounts[tag]
	return a, ok
}

// Compute returns the sum of the fines for the tags in tags.
//
// A tag without a table entry returns a *ConfigurationError; pricing it at
// zero would silently under-charge.
func (t *FineTable) Compute(tags TagSet) (int, error) {
	total := 0
	for _, tag := range tags.tags {
		a, ok := t.amounts[tag]
		if !ok {
			return 0, &ConfigurationError{Tag: tag, Reason: "no fine configured"}
		}
		total += a
	}
	return total, nil
}

// Amounts returns a copy of the table keyed by tag.
func (t *FineTable) Amounts() map[Tag]int {
	out := make(map[Tag]int, len(t.amounts))
	for k, v := range t.amounts {
		out[k] = v
	}
	return out
}

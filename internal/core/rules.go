package core

import (
	"sort"
	"strings"
)

// QuantityRule decides whether one more scan may be accepted for an order item.
// accepted holds the ledger records already bound to the item, in insertion order.
type QuantityRule interface {
	Name() string
	// Scanned is the count the rule measures against Quantity.
	Scanned(accepted []ScanRecord) int
	// Admit returns ErrQuantityExceeded when barcode may not be added to the item.
	Admit(item OrderItem, accepted []ScanRecord, barcode string) error
}

// CountRule is the standard rule: every accepted scan counts once.
type CountRule struct{}

func (CountRule) Name() string { return "count" }

func (CountRule) Scanned(accepted []ScanRecord) int { return len(accepted) }

func (r CountRule) Admit(item OrderItem, accepted []ScanRecord, _ string) error {
	if r.Scanned(accepted) >= item.Quantity {
		return ErrQuantityExceeded
	}
	return nil
}

// DistinctRule applies to uniquely-serialized types. Completeness is measured in
// distinct barcodes, so a repeated barcode never consumes capacity.
type DistinctRule struct{}

func (DistinctRule) Name() string { return "distinct" }

func (DistinctRule) Scanned(accepted []ScanRecord) int {
	return len(DistinctBarcodes(accepted))
}

func (r DistinctRule) Admit(item OrderItem, accepted []ScanRecord, barcode string) error {
	distinct := DistinctBarcodes(accepted)
	for _, b := range distinct {
		if b == barcode {
			return nil
		}
	}
	if len(distinct) >= item.Quantity {
		return ErrQuantityExceeded
	}
	return nil
}

// DistinctBarcodes returns the barcodes of records in first-seen order without repeats.
func DistinctBarcodes(records []ScanRecord) []string {
	seen := make(map[string]bool, len(records))
	out := make([]string, 0, len(records))
	for _, r := range records {
		if seen[r.Barcode] {
			continue
		}
		seen[r.Barcode] = true
		out = append(out, r.Barcode)
	}
	return out
}

// DefaultSerializedTypes are the item type tags that use DistinctRule out of the box.
var DefaultSerializedTypes = []string{"Jumbo Roll"}

// RuleSet selects the quantity rule for an item by its type tag.
// Tags are compared case-insensitively after trimming.
type RuleSet struct {
	byTag    map[string]QuantityRule
	fallback QuantityRule
}

// NewRuleSet returns a RuleSet where the given tags use DistinctRule and every other tag uses CountRule.
func NewRuleSet(serializedTypes ...string) *RuleSet {
	rs := &RuleSet{byTag: make(map[string]QuantityRule), fallback: CountRule{}}
	for _, tag := range serializedTypes {
		rs.Register(tag, DistinctRule{})
	}
	return rs
}

// DefaultRuleSet returns NewRuleSet(DefaultSerializedTypes...).
func DefaultRuleSet() *RuleSet {
	return NewRuleSet(DefaultSerializedTypes...)
}

// Register binds a rule to a type tag, replacing any previous binding.
func (rs *RuleSet) Register(tag string, rule QuantityRule) {
	key := normalizeTag(tag)
	if key == "" {
		return
	}
	rs.byTag[key] = rule
}

// For returns the rule that governs items tagged tag.
func (rs *RuleSet) For(tag string) QuantityRule {
	if rule, ok := rs.byTag[normalizeTag(tag)]; ok {
		return rule
	}
	return rs.fallback
}

// SerializedTypes lists the registered tags in sorted order.
func (rs *RuleSet) SerializedTypes() []string {
	out := make([]string, 0, len(rs.byTag))
	for tag := range rs.byTag {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.Join(strings.Fields(tag), " "))
}

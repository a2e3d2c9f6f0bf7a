package core

import "fulfillment/internal/clock"

// Services wires the fulfillment components over one store.
type Services struct {
	Rules     *RuleSet
	Ledger    ScanLedger
	Matcher   BarcodeMatcher
	Tracker   FulfillmentTracker
	Finalizer ShipmentFinalizer
}

// NewServices builds the matcher, ledger, tracker and finalizer sharing store, rules and clk.
func NewServices(store Store, rules *RuleSet, clk clock.Clock, opts ...MatcherOption) *Services {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	ledger := NewScanLedger(store, clk)
	matcher := NewBarcodeMatcher(store, store, ledger, rules, opts...)
	return &Services{
		Rules:     rules,
		Ledger:    ledger,
		Matcher:   matcher,
		Tracker:   NewFulfillmentTracker(store, matcher, ledger, rules),
		Finalizer: NewShipmentFinalizer(store, ledger, clk),
	}
}

// Package violation turns an analyzed rider into a priced violation record.
//
// Classify is a pure rule engine over a RiderRecord; FineTable.Compute prices
// the resulting tag set; NewRecord bundles both into an immutable Record.
// A rider with no violations is tagged NoViolation rather than left with an
// empty set, so "analyzed and clean" never looks like "not analyzed".
package violation

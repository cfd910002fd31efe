// Package validate checks reconciled samples for completeness and reports
// which artifacts each incomplete sample is missing.
package validate

// Package model defines the core data types shared across breachmon:
// breach records, monitoring targets, k-anonymity set bookkeeping, and
// the result types returned by the check and cleanup operations.
//
// All types in this package are plain data carriers with no behavior
// beyond validation and formatting. Persistence lives in the storage
// backends, orchestration in checker, retention, and crawl.
package model

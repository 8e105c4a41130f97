// Package main provides the entry point for the breachmon CLI.
//
// breachmon is a privacy-preserving breach intelligence service. It
// collects credential disclosures from public sources, stores them as
// hashes with a bounded retention window, and answers k-anonymity
// credential checks that never reveal whether one specific credential
// was breached unless enough others share its hash prefix.
//
// Usage:
//
//	breachmon check <credential>
//	breachmon monitor
//	breachmon target add <credential>
//	breachmon cleanup
//	breachmon stats
//
// See --help for all available options.
package main

// main is the entry point for breachmon.
func main() {
	Execute()
}

// Package log provides structured logging for breachmon on top of
// log/slog, with a redacting handler that keeps raw credentials and
// other personal identifiers out of log output.
//
// Every logger in the service is built through this package. The core
// never sees a plaintext credential past the hasher, but the API layer
// and source adapters handle caller input and scraped content, so the
// redaction net is cast wide: any attribute whose key or value looks
// like a credential is masked before it reaches the underlying handler.
package log

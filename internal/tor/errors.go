package tor

import "errors"

var (
	// ErrInvalidProxyAddress is returned when the proxy address is not
	// in "host:port" form.
	ErrInvalidProxyAddress = errors.New("tor: invalid proxy address, expected host:port")

	// ErrProxyUnavailable is returned when no Tor SOCKS5 proxy answers
	// at the configured address. Dark-web sources wrap this error so
	// the crawl scheduler can degrade them instead of failing a run.
	ErrProxyUnavailable = errors.New("tor: proxy unavailable")

	// ErrNotSOCKS5 is returned when something answers at the proxy
	// address but does not speak SOCKS5. Callers should fail fast on
	// this rather than retry.
	ErrNotSOCKS5 = errors.New("tor: proxy is not a SOCKS5 proxy")

	// ErrDaemonNotRunning is returned when an embedded daemon method
	// is called before Start succeeded.
	ErrDaemonNotRunning = errors.New("tor: embedded daemon is not running")
)

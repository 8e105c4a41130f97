// Package tor provides SOCKS5 connectivity for dark-web breach sources.
//
// The default mode talks to an external Tor daemon on its SOCKS port.
// When no daemon is available an embedded one can be launched through
// tornago, at the cost of a 1-3 minute bootstrap.
package tor

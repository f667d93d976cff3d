// Package portal implements the Stalker middleware client: endpoint
// derivation from the configured server address, the MAG device handshake
// with persisted session token, paginated category and video listings, and
// the watchdog keepalive ping.
//
// Every request carries the header set Stalker middleware expects from a
// MAG250 box. A rejected token triggers exactly one re-handshake before the
// request is retried.
package portal

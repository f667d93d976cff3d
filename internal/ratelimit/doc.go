// Package ratelimit provides a sliding-window admission gate for outbound
// API requests. Callers block cooperatively until budget is available; no
// request is ever dropped.
package ratelimit

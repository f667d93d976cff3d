// Package service runs the background pieces of a long-lived process: the
// periodic staleness probe that keeps the listing cache warm, and the
// watchdog keepalive ping bracketing playback sessions.
package service

// Package server exposes the HTTP control surface: session lifecycle
// endpoints, health, statistics and Prometheus metrics.
package server

// Package ports declares the interfaces the dispatcher depends on: the custody
// ledger and its atomic executor, the three protocol integrations, the event
// bus, settings storage and metrics.
package ports

// Package ordersync contains the Order Synchronization bounded context.
// This context manages incremental pull of orders from the upstream
// EcoManager order platform into the local back office.
//
// Key concepts:
//   - OrderSource: Port interface for fetching ID-ordered order pages from the upstream API
//   - RateGovernor: Port enforcing the upstream's nested rate-limit windows
//   - SyncPosition: Value object recording how far a sync pass progressed (the frontier)
//   - PositionLocator: Port re-deriving a trustworthy page when the cached position is lost
//   - Persister: Port for idempotent upserts of pulled order snapshots
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package ordersync

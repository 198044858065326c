// Package app composes the social layer into a running application.
//
// The package wires the sponsor service to its stores and chain access and
// manages service lifecycles. Business logic lives in
// internal/app/services/; this layer only assembles it.
//
//	internal/app/
//	├── application.go      # Application struct, store defaulting, wiring
//	├── domain/             # Domain models (pure data structures)
//	│   ├── gas/            # Fee-coin lease records
//	│   └── task/           # Delegated actions and their responses
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # GasLeaseStore, TaskStore, ProfileCapStore
//	│   ├── memory/         # In-memory implementation for tests
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── redis/          # Redis task mailbox
//	├── services/sponsor/   # Delegated execution: queue, worker, rebalancer
//	├── httpapi/            # HTTP handlers and routing
//	├── system/             # Lifecycle management
//	└── metrics/            # Prometheus collectors
package app

// Package device resolves the devices, assignments and command definitions
// that command delivery needs.
//
// It is the service's implementation of the device management collaborator:
// a read-mostly Registry over a SQLite Repository. Devices and commands are
// cached by token; assignments are always read through so that an
// assignment released elsewhere is never used for delivery.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Device Registry                        │
//	│                                                               │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌───────────┐  │
//	│  │     Registry     │──▶│    Repository    │   │  Nesting  │  │
//	│  │  (registry.go)   │   │ (repository.go)  │   │(nesting.go)│ │
//	│  │ • token cache    │   │ • SQLite queries │   │ • gateway │  │
//	│  │ • deep copies    │   │ • upserts (seed) │   │   first   │  │
//	│  └──────────────────┘   └──────────────────┘   └───────────┘  │
//	└──────────────────────────────────────────────────────────────┘
//
// # Nesting
//
// A leaf device without its own connectivity names its gateway through
// ParentToken. BuildNesting walks those links and returns an immutable
// NestingContext ordered gateway first, target last. The walk is bounded by
// MaxNestingDepth and rejects cycles.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	dev, err := registry.GetDeviceByToken(ctx, "dev-1")
//	nesting, err := device.BuildNesting(ctx, registry, dev)
//	gw := nesting.Gateway()
//
// # Thread Safety
//
// The Registry is safe for concurrent use. NestingContext values are
// immutable and may be shared between goroutines.
package device

/*
Package log provides structured logging for rangevault using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("recovery")                │          │
	│  │  - WithLocation("rs1.example.com:9090")     │          │
	│  │  - WithOpID("rs1/root")                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "recovery",                 │          │
	│  │    "time": "2026-07-31T10:30:00Z",          │          │
	│  │    "message": "range server rs1 failed"     │          │
	│  │  }                                           │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	recoveryLog := log.WithComponent("recovery")
	recoveryLog.Info().Str("location", "rs1:9090").Msg("range server failed")

	opLog := log.WithComponent("recovery").
		With().Str("op_id", "rs1/root").Logger()
	opLog.Info().Msg("recovery operation starting")

Context logger helpers:

	locLog := log.WithLocation("rs1.example.com:9090")
	locLog.Warn().Msg("quorum gate not yet satisfied")

	opLog := log.WithOpID("rs1/user")
	opLog.Error().Err(err).Msg("phantom_load RPC failed")

# Integration Points

  - pkg/recovery: recovery operation and sub-operation lifecycle
  - pkg/replication: master/slave fragment assignment and transfer
  - pkg/coordinator: Raft and balance-authority events
  - pkg/rangerpc: per-RPC request/response logging
  - pkg/admin: administrator notification fan-out

# Log Levels

  - Debug: verbose, per-fragment detail, development only
  - Info: default production level, lifecycle transitions
  - Warn: recoverable conditions (quorum gate parked, lock retry)
  - Error: operation failures that need investigation
  - Fatal: unrecoverable startup errors, exits the process

# Best Practices

Do:
  - Use structured fields (.Str, .Int, .Err) instead of string concatenation
  - Create a component logger once per subsystem and reuse it
  - Include location/op_id context on every recovery or replication log line

Don't:
  - Log secrets (TLS private keys, Hyperspace lock tokens)
  - Log in tight per-block loops; sample or aggregate instead
*/
package log

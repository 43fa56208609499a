/*
Package types defines the core identifiers and value types shared by every
other package in this repository: table and range identity, range state
flags, server locations, and commit-log fragment references.

# Core types

Identity:
  - TableId: name plus generation, equality requires both
  - RangeSpec: half-open (start_row, end_row] interval
  - QualifiedRange: (TableId, RangeSpec), the primary key used throughout
  - Location: a range server's stable short identifier

Range state:
  - RangeStateFlag: PHANTOM is an overlay bit, OR-able with any primary state
  - RangeState: flags plus the ancillary fields a few of them need

Commit log:
  - Fragment: (log_directory, id), totally ordered within a directory

Balance:
  - RangeMoveSpec: one in-flight move, (table, range, destination)

# Design

These types are deliberately free of behavior beyond comparison and string
formatting. The state machines that mutate them live in pkg/balance,
pkg/phantom, and pkg/recovery; this package only fixes the vocabulary they
share so that, e.g., a QualifiedRange built in pkg/recovery and one built in
pkg/phantom are comparable by value without any adapter.
*/
package types

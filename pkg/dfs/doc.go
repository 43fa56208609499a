/*
Package dfs defines the Filesystem interface that commit-log fragments and
the replication master's scans and error directory are read and written
through, plus LocalFilesystem, a single-node implementation rooted at a
directory on local disk. Metalog entities (including persisted
replication state) are not stored through this interface; pkg/metalog
keeps them in a local bbolt file.

A production deployment would front a real distributed filesystem behind
this same interface; none is wired into this repository, so LocalFilesystem
is both the reference implementation and the one used in tests.
*/
package dfs

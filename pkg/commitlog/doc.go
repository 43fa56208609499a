/*
Package commitlog implements the append-serialized block format used by
every commit-log fragment on the distributed filesystem: a sequence of
self-delimited blocks, each carrying a magic tag, a compression code, a
checksum pair, a revision, and an origin-cluster id.

# Block layout

Every block starts with a fixed-size header (little-endian) followed by its
(possibly compressed) payload:

	magic             10 bytes
	header length      1 byte
	compression type   1 byte
	data checksum      4 bytes  (Fletcher-32 over the decompressed payload)
	data length         4 bytes  (uncompressed)
	data zlength        4 bytes  (compressed, on the wire)
	revision            8 bytes
	cluster id          8 bytes  (absent in legacy fragments)
	header checksum     2 bytes  (Fletcher-32 over the preceding header bytes)

Three magics distinguish block kinds: Data (ordinary payload), Link (payload
is a UTF-8 directory name that must also be scanned), and EOF (marks a
cleanly closed fragment, empty payload). Legacy fragments predate the
cluster id field; they are recognized by a magic suffix byte of '1' instead
of '2', and their cluster id always decodes as 0.

# Reader contract

Reader.Next scans one block per call. A zero-length or partially written
trailing block is not an error: Next returns io.EOF, matching a log file
observed mid-append by a crashed writer. A bad header checksum, a bad
payload checksum, or a compressed length that claims more bytes than the
sanity ceiling allows surfaces as a *rangeerr.Error with
rangeerr.KindCorruptCommitLog. Every Link block's payload is also appended
to Reader.LinkedLogs so callers can fold linked directories into their scan
without re-deriving it from the blocks themselves.
*/
package commitlog

/*
Package phantom implements the destination side of range recovery (spec
component L5): the per-source-server PhantomRangeMap that stages ranges
through LOADED → REPLAYED → PREPARED → COMMITTED, backing the
phantom_load, phantom_update, phantom_prepare_ranges,
phantom_commit_ranges, and acknowledge_load operations a RecoverRanges
sub-operation drives a destination through.
*/
package phantom

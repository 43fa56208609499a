/*
Package metalog is the persisted-entity layer backing the coordinator's
metalog, the replication master's state, and the per-range-server
metalog directory (rsml) described in spec terms. It stores opaque JSON
payloads bucketed by Kind, so BalancePlanAuthority, RecoveryPlan, Range,
and ReplicationState entities (owned by pkg/balance, pkg/recovery,
pkg/phantom, pkg/replication respectively) never need to teach this
package their internal shape.
*/
package metalog

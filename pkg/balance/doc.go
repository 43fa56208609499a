/*
Package balance implements the Balance Plan Authority, the coordinator's
single source of truth for range destinations. It serializes two kinds
of assignment that must never race each other: ordinary balance moves
(RegisterMove/GetBalanceDestination/MoveComplete) and whole-server
recovery plans (CreateRecoveryPlan and friends), persisting both through
pkg/metalog so a coordinator restart resumes with the exact same
destinations rather than re-deriving them and risking a split-brain
assignment.
*/
package balance

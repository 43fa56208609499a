package rangerpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/cuemby/rangevault/pkg/replication"
	"github.com/cuemby/rangevault/pkg/types"
)

// RecoveryHandler is the destination-side implementation of the
// "Recovery side (coordinator <-> destination)" RPCs (spec.md §6). A
// range server implements this to receive phantom-load plans, replay
// streams, and acknowledgements from the coordinator.
type RecoveryHandler interface {
	PhantomLoad(ctx context.Context, req PhantomLoadRequest) error
	PhantomUpdate(ctx context.Context, req PhantomUpdateRequest) error
	PhantomPrepareRanges(ctx context.Context, req PrepareRangesRequest) error
	PhantomCommitRanges(ctx context.Context, req CommitRangesRequest) error
	ReplayFragments(ctx context.Context, req ReplayFragmentsRequest) error
	AcknowledgeLoad(ctx context.Context, ranges []types.QualifiedRange) (map[types.QualifiedRange]error, error)
}

// MasterHandler is the replication master's side of "Replication master
// <-> slave" (spec.md §6): a local slave's assign_fragments/
// finished_fragment calls, and a remote cluster master's
// get_receiver_list/apply_schema_update calls.
type MasterHandler interface {
	AssignFragments(ctx context.Context, location types.Location, slaveAddr string) (replication.AssignmentResult, error)
	FinishedFragment(ctx context.Context, fragment string, ferr error, linkedLogs []string) error
	GetReceiverList(ctx context.Context) ([]string, error)
	ApplySchemaUpdate(ctx context.Context, kind, tableName, tableID, schema string) error
	Status(ctx context.Context) (string, error)
	Shutdown(ctx context.Context) error
}

// SlaveHandler is a replication slave's receiving side of "Slave <->
// remote slave" (spec.md §6): another cluster's slave ships it rows via
// Update.
type SlaveHandler interface {
	Update(ctx context.Context, tableName string, payload []byte) error
	Status(ctx context.Context) (string, error)
	Shutdown(ctx context.Context) error
}

// unaryHandler adapts a (handler-type, request, response) triple into
// the grpc.MethodDesc.Handler shape that real protoc-generated code
// produces, without needing one hand-copied closure per RPC.
func unaryHandler[H any, Req any, Resp any](method string, call func(h H, ctx context.Context, req *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		h := srv.(H)
		if interceptor == nil {
			return call(h, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		wrapped := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(h, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, wrapped)
	}
}

const (
	recoveryServiceName = "rangevault.Recovery"
	masterServiceName   = "rangevault.ReplicationMaster"
	slaveServiceName    = "rangevault.Slave"
)

func recoveryPhantomLoad(h RecoveryHandler, ctx context.Context, req *PhantomLoadRequest) (*StatusResponse, error) {
	err := h.PhantomLoad(ctx, *req)
	return &StatusResponse{Error: wireError("phantom_load", err)}, nil
}

func recoveryPhantomUpdate(h RecoveryHandler, ctx context.Context, req *PhantomUpdateRequest) (*StatusResponse, error) {
	err := h.PhantomUpdate(ctx, *req)
	return &StatusResponse{Error: wireError("phantom_update", err)}, nil
}

func recoveryPrepareRanges(h RecoveryHandler, ctx context.Context, req *PrepareRangesRequest) (*StatusResponse, error) {
	err := h.PhantomPrepareRanges(ctx, *req)
	return &StatusResponse{Error: wireError("phantom_prepare_ranges", err)}, nil
}

func recoveryCommitRanges(h RecoveryHandler, ctx context.Context, req *CommitRangesRequest) (*StatusResponse, error) {
	err := h.PhantomCommitRanges(ctx, *req)
	return &StatusResponse{Error: wireError("phantom_commit_ranges", err)}, nil
}

func recoveryReplayFragments(h RecoveryHandler, ctx context.Context, req *ReplayFragmentsRequest) (*StatusResponse, error) {
	err := h.ReplayFragments(ctx, *req)
	return &StatusResponse{Error: wireError("replay_fragments", err)}, nil
}

func recoveryAcknowledgeLoad(h RecoveryHandler, ctx context.Context, req *AcknowledgeLoadRequest) (*AcknowledgeLoadResponse, error) {
	results, err := h.AcknowledgeLoad(ctx, req.Ranges)
	if err != nil {
		return &AcknowledgeLoadResponse{Error: wireError("acknowledge_load", err)}, nil
	}
	out := make([]ackResult, 0, len(results))
	for r, rerr := range results {
		out = append(out, ackResult{Range: r, Error: wireError("acknowledge_load", rerr)})
	}
	return &AcknowledgeLoadResponse{Results: out}, nil
}

var recoveryServiceDesc = grpc.ServiceDesc{
	ServiceName: recoveryServiceName,
	HandlerType: (*RecoveryHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PhantomLoad", Handler: unaryHandler[RecoveryHandler, PhantomLoadRequest, StatusResponse](recoveryServiceName+"/PhantomLoad", recoveryPhantomLoad)},
		{MethodName: "PhantomUpdate", Handler: unaryHandler[RecoveryHandler, PhantomUpdateRequest, StatusResponse](recoveryServiceName+"/PhantomUpdate", recoveryPhantomUpdate)},
		{MethodName: "PhantomPrepareRanges", Handler: unaryHandler[RecoveryHandler, PrepareRangesRequest, StatusResponse](recoveryServiceName+"/PhantomPrepareRanges", recoveryPrepareRanges)},
		{MethodName: "PhantomCommitRanges", Handler: unaryHandler[RecoveryHandler, CommitRangesRequest, StatusResponse](recoveryServiceName+"/PhantomCommitRanges", recoveryCommitRanges)},
		{MethodName: "ReplayFragments", Handler: unaryHandler[RecoveryHandler, ReplayFragmentsRequest, StatusResponse](recoveryServiceName+"/ReplayFragments", recoveryReplayFragments)},
		{MethodName: "AcknowledgeLoad", Handler: unaryHandler[RecoveryHandler, AcknowledgeLoadRequest, AcknowledgeLoadResponse](recoveryServiceName+"/AcknowledgeLoad", recoveryAcknowledgeLoad)},
	},
	Metadata: "rangerpc/recovery.proto",
}

func masterAssignFragments(h MasterHandler, ctx context.Context, req *AssignFragmentsRequest) (*AssignFragmentsResponse, error) {
	result, err := h.AssignFragments(ctx, req.SlaveLocation, req.SlaveAddr)
	if err != nil {
		return &AssignFragmentsResponse{Error: wireError("assign_fragments", err)}, nil
	}
	return &AssignFragmentsResponse{Result: result}, nil
}

func masterFinishedFragment(h MasterHandler, ctx context.Context, req *FinishedFragmentRequest) (*StatusResponse, error) {
	err := h.FinishedFragment(ctx, req.Fragment, req.FragErr.toError(), req.LinkedLogs)
	return &StatusResponse{Error: wireError("finished_fragment", err)}, nil
}

func masterGetReceiverList(h MasterHandler, ctx context.Context, _ *GetReceiverListRequest) (*GetReceiverListResponse, error) {
	addrs, err := h.GetReceiverList(ctx)
	if err != nil {
		return &GetReceiverListResponse{Error: wireError("get_receiver_list", err)}, nil
	}
	return &GetReceiverListResponse{Addresses: addrs}, nil
}

func masterApplySchemaUpdate(h MasterHandler, ctx context.Context, req *ApplySchemaUpdateRequest) (*StatusResponse, error) {
	err := h.ApplySchemaUpdate(ctx, req.Kind, req.TableName, req.TableID, req.Schema)
	return &StatusResponse{Error: wireError("apply_schema_update", err)}, nil
}

func masterStatus(h MasterHandler, ctx context.Context, _ *StatusRequest) (*StatusInfoResponse, error) {
	status, err := h.Status(ctx)
	return &StatusInfoResponse{Status: status, Error: wireError("status", err)}, nil
}

func masterShutdown(h MasterHandler, ctx context.Context, _ *ShutdownRequest) (*StatusResponse, error) {
	err := h.Shutdown(ctx)
	return &StatusResponse{Error: wireError("shutdown", err)}, nil
}

var masterServiceDesc = grpc.ServiceDesc{
	ServiceName: masterServiceName,
	HandlerType: (*MasterHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AssignFragments", Handler: unaryHandler[MasterHandler, AssignFragmentsRequest, AssignFragmentsResponse](masterServiceName+"/AssignFragments", masterAssignFragments)},
		{MethodName: "FinishedFragment", Handler: unaryHandler[MasterHandler, FinishedFragmentRequest, StatusResponse](masterServiceName+"/FinishedFragment", masterFinishedFragment)},
		{MethodName: "GetReceiverList", Handler: unaryHandler[MasterHandler, GetReceiverListRequest, GetReceiverListResponse](masterServiceName+"/GetReceiverList", masterGetReceiverList)},
		{MethodName: "ApplySchemaUpdate", Handler: unaryHandler[MasterHandler, ApplySchemaUpdateRequest, StatusResponse](masterServiceName+"/ApplySchemaUpdate", masterApplySchemaUpdate)},
		{MethodName: "Status", Handler: unaryHandler[MasterHandler, StatusRequest, StatusInfoResponse](masterServiceName+"/Status", masterStatus)},
		{MethodName: "Shutdown", Handler: unaryHandler[MasterHandler, ShutdownRequest, StatusResponse](masterServiceName+"/Shutdown", masterShutdown)},
	},
	Metadata: "rangerpc/replication.proto",
}

func slaveUpdate(h SlaveHandler, ctx context.Context, req *UpdateRequest) (*StatusResponse, error) {
	err := h.Update(ctx, req.TableName, req.Payload)
	return &StatusResponse{Error: wireError("update", err)}, nil
}

func slaveStatus(h SlaveHandler, ctx context.Context, _ *StatusRequest) (*StatusInfoResponse, error) {
	status, err := h.Status(ctx)
	return &StatusInfoResponse{Status: status, Error: wireError("status", err)}, nil
}

func slaveShutdown(h SlaveHandler, ctx context.Context, _ *ShutdownRequest) (*StatusResponse, error) {
	err := h.Shutdown(ctx)
	return &StatusResponse{Error: wireError("shutdown", err)}, nil
}

var slaveServiceDesc = grpc.ServiceDesc{
	ServiceName: slaveServiceName,
	HandlerType: (*SlaveHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Update", Handler: unaryHandler[SlaveHandler, UpdateRequest, StatusResponse](slaveServiceName+"/Update", slaveUpdate)},
		{MethodName: "Status", Handler: unaryHandler[SlaveHandler, StatusRequest, StatusInfoResponse](slaveServiceName+"/Status", slaveStatus)},
		{MethodName: "Shutdown", Handler: unaryHandler[SlaveHandler, ShutdownRequest, StatusResponse](slaveServiceName+"/Shutdown", slaveShutdown)},
	},
	Metadata: "rangerpc/slave.proto",
}

package rangerpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/cuemby/rangevault/pkg/recovery"
	"github.com/cuemby/rangevault/pkg/replication"
	"github.com/cuemby/rangevault/pkg/security"
	"github.com/cuemby/rangevault/pkg/types"
)

// Resolver turns a stable Location into the network address currently
// serving it. *connection.Manager satisfies this directly (its
// ProxyName method); rangerpc only depends on the method it needs,
// mirroring pkg/replication's AdminNotifier decoupling so this package
// never has to import pkg/connection.
type Resolver interface {
	ProxyName(location types.Location) (string, bool)
}

// Dialer caches one mTLS *grpc.ClientConn per address so repeated RPCs
// (a replication slave's per-block Update, a coordinator's per-
// destination recovery calls) don't redial every call, the way
// pkg/worker.connectWithMTLS loads its certificate once per connection
// rather than per RPC.
type Dialer struct {
	mu        sync.Mutex
	conns     map[string]*grpc.ClientConn
	tlsConfig *tls.Config
}

// NewDialer loads the client certificate/CA for role/location and
// returns a Dialer ready to open connections authenticated as that
// identity.
func NewDialer(role, location string) (*Dialer, error) {
	certDir, err := security.GetCertDir(role, location)
	if err != nil {
		return nil, fmt.Errorf("rangerpc: cert directory: %w", err)
	}
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("rangerpc: load certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("rangerpc: load CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	return &Dialer{
		conns: make(map[string]*grpc.ClientConn),
		tlsConfig: &tls.Config{
			Certificates: []tls.Certificate{*cert},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS13,
		},
	}, nil
}

// conn returns the cached connection to addr, dialing one if this is the
// first call for that address.
func (d *Dialer) conn(addr string) (*grpc.ClientConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.conns[addr]; ok {
		return c, nil
	}

	creds := credentials.NewTLS(d.tlsConfig)
	c, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("rangerpc: dial %s: %w", addr, err)
	}
	d.conns[addr] = c
	return c, nil
}

// Close tears down every cached connection.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var first error
	for addr, c := range d.conns {
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("rangerpc: close %s: %w", addr, err)
		}
		delete(d.conns, addr)
	}
	return first
}

// DestinationRPCClient implements recovery.DestinationClient over
// rangerpc, resolving each call's types.Location through a Resolver
// before dialing.
type DestinationRPCClient struct {
	dialer  *Dialer
	resolve Resolver
}

// NewDestinationClient builds a recovery.DestinationClient backed by
// real gRPC calls.
func NewDestinationClient(dialer *Dialer, resolve Resolver) *DestinationRPCClient {
	return &DestinationRPCClient{dialer: dialer, resolve: resolve}
}

func (c *DestinationRPCClient) addr(dest types.Location) (string, error) {
	addr, ok := c.resolve.ProxyName(dest)
	if !ok {
		return "", fmt.Errorf("rangerpc: no known address for %s", dest)
	}
	return addr, nil
}

func (c *DestinationRPCClient) PhantomLoad(ctx context.Context, dest types.Location, req recovery.PhantomLoadRequest) error {
	addr, err := c.addr(dest)
	if err != nil {
		return err
	}
	conn, err := c.dialer.conn(addr)
	if err != nil {
		return err
	}
	in := phantomLoadRequestFrom(req)
	out := new(StatusResponse)
	if err := conn.Invoke(ctx, "/"+recoveryServiceName+"/PhantomLoad", &in, out); err != nil {
		return err
	}
	return out.Error.toError()
}

func (c *DestinationRPCClient) ReplayFragments(ctx context.Context, dest types.Location, req recovery.ReplayFragmentsRequest) error {
	addr, err := c.addr(dest)
	if err != nil {
		return err
	}
	conn, err := c.dialer.conn(addr)
	if err != nil {
		return err
	}
	in := &ReplayFragmentsRequest{
		OpID: req.OpID, Attempt: req.Attempt, Source: req.Source, Class: req.Class,
		Fragments: req.Fragments, ReceiverPlan: receiverPlanToWire(req.ReceiverPlan),
		TimeoutMS: req.Timeout.Milliseconds(),
	}
	out := new(StatusResponse)
	if err := conn.Invoke(ctx, "/"+recoveryServiceName+"/ReplayFragments", in, out); err != nil {
		return err
	}
	return out.Error.toError()
}

func (c *DestinationRPCClient) PhantomPrepareRanges(ctx context.Context, dest types.Location, req recovery.PrepareRangesRequest) error {
	addr, err := c.addr(dest)
	if err != nil {
		return err
	}
	conn, err := c.dialer.conn(addr)
	if err != nil {
		return err
	}
	in := &PrepareRangesRequest{OpID: req.OpID, Source: req.Source, Ranges: req.Ranges}
	out := new(StatusResponse)
	if err := conn.Invoke(ctx, "/"+recoveryServiceName+"/PhantomPrepareRanges", in, out); err != nil {
		return err
	}
	return out.Error.toError()
}

func (c *DestinationRPCClient) PhantomCommitRanges(ctx context.Context, dest types.Location, req recovery.CommitRangesRequest) error {
	addr, err := c.addr(dest)
	if err != nil {
		return err
	}
	conn, err := c.dialer.conn(addr)
	if err != nil {
		return err
	}
	in := &CommitRangesRequest{OpID: req.OpID, Source: req.Source, Ranges: req.Ranges}
	out := new(StatusResponse)
	if err := conn.Invoke(ctx, "/"+recoveryServiceName+"/PhantomCommitRanges", in, out); err != nil {
		return err
	}
	return out.Error.toError()
}

func (c *DestinationRPCClient) AcknowledgeLoad(ctx context.Context, dest types.Location, ranges []types.QualifiedRange) (map[types.QualifiedRange]error, error) {
	addr, err := c.addr(dest)
	if err != nil {
		return nil, err
	}
	conn, err := c.dialer.conn(addr)
	if err != nil {
		return nil, err
	}
	in := &AcknowledgeLoadRequest{Ranges: ranges}
	out := new(AcknowledgeLoadResponse)
	if err := conn.Invoke(ctx, "/"+recoveryServiceName+"/AcknowledgeLoad", in, out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, out.Error.toError()
	}
	results := make(map[types.QualifiedRange]error, len(out.Results))
	for _, r := range out.Results {
		results[r.Range] = r.Error.toError()
	}
	return results, nil
}

// MasterRPCClient implements replication.MasterClient over rangerpc, for
// a cluster's replication master to talk to a remote cluster's
// replication master. Cluster names resolve to dial addresses through
// resolve, since a schema update's destination is named by cluster, not
// by a single fixed address.
type MasterRPCClient struct {
	dialer  *Dialer
	resolve func(cluster string) (string, error)
}

// NewMasterClient builds a replication.MasterClient backed by real gRPC
// calls, resolving a cluster name to a dial address via resolve.
func NewMasterClient(dialer *Dialer, resolve func(cluster string) (string, error)) *MasterRPCClient {
	return &MasterRPCClient{dialer: dialer, resolve: resolve}
}

func (c *MasterRPCClient) call(ctx context.Context, cluster, method string, in, out interface{}) error {
	addr, err := c.resolve(cluster)
	if err != nil {
		return err
	}
	conn, err := c.dialer.conn(addr)
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, "/"+masterServiceName+"/"+method, in, out)
}

// ApplySchemaUpdate implements replication.MasterClient.
func (c *MasterRPCClient) ApplySchemaUpdate(ctx context.Context, cluster string, kind replication.SchemaUpdateKind, tableName, schema string) error {
	var kindStr string
	switch kind {
	case replication.SchemaUpdateCreateTable:
		kindStr = "create_table"
	case replication.SchemaUpdateAlterTable:
		kindStr = "alter_table"
	}
	in := &ApplySchemaUpdateRequest{Kind: kindStr, TableName: tableName, Schema: schema}
	out := new(StatusResponse)
	if err := c.call(ctx, cluster, "ApplySchemaUpdate", in, out); err != nil {
		return err
	}
	return out.Error.toError()
}

// GetReceiverList implements replication.MasterClient.
func (c *MasterRPCClient) GetReceiverList(ctx context.Context, cluster string) ([]string, error) {
	in := &GetReceiverListRequest{Cluster: cluster}
	out := new(GetReceiverListResponse)
	if err := c.call(ctx, cluster, "GetReceiverList", in, out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, out.Error.toError()
	}
	return out.Addresses, nil
}

// LocalMasterRPCClient implements replication.LocalMasterClient over
// rangerpc, bound to a single fixed master address — used when a
// cluster's replication slave runs in a different process from its own
// replication master.
type LocalMasterRPCClient struct {
	dialer *Dialer
	addr   string
}

// NewLocalMasterClient builds a replication.LocalMasterClient dialing
// masterAddr for every call.
func NewLocalMasterClient(dialer *Dialer, masterAddr string) *LocalMasterRPCClient {
	return &LocalMasterRPCClient{dialer: dialer, addr: masterAddr}
}

func (c *LocalMasterRPCClient) call(ctx context.Context, method string, in, out interface{}) error {
	conn, err := c.dialer.conn(c.addr)
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, "/"+masterServiceName+"/"+method, in, out)
}

// AssignFragments implements replication.LocalMasterClient.
func (c *LocalMasterRPCClient) AssignFragments(ctx context.Context, location types.Location, slaveAddr string) (replication.AssignmentResult, error) {
	in := &AssignFragmentsRequest{SlaveLocation: location, SlaveAddr: slaveAddr}
	out := new(AssignFragmentsResponse)
	if err := c.call(ctx, "AssignFragments", in, out); err != nil {
		return replication.AssignmentResult{}, err
	}
	if out.Error != nil {
		return replication.AssignmentResult{}, out.Error.toError()
	}
	return out.Result, nil
}

// FinishedFragment implements replication.LocalMasterClient.
func (c *LocalMasterRPCClient) FinishedFragment(ctx context.Context, fragment string, ferr error, linkedLogs []string) error {
	in := &FinishedFragmentRequest{Fragment: fragment, FragErr: wireError("finished_fragment", ferr), LinkedLogs: linkedLogs}
	out := new(StatusResponse)
	if err := c.call(ctx, "FinishedFragment", in, out); err != nil {
		return err
	}
	return out.Error.toError()
}

// SlaveRPCClient implements replication.RemoteSlaveClient over rangerpc.
type SlaveRPCClient struct {
	dialer *Dialer
}

// NewSlaveClient builds a replication.RemoteSlaveClient backed by real
// gRPC calls.
func NewSlaveClient(dialer *Dialer) *SlaveRPCClient {
	return &SlaveRPCClient{dialer: dialer}
}

// Update implements replication.RemoteSlaveClient.
func (c *SlaveRPCClient) Update(ctx context.Context, slaveAddr, tableName string, payload []byte) error {
	conn, err := c.dialer.conn(slaveAddr)
	if err != nil {
		return err
	}
	in := &UpdateRequest{TableName: tableName, Payload: payload}
	out := new(StatusResponse)
	if err := conn.Invoke(ctx, "/"+slaveServiceName+"/Update", in, out); err != nil {
		return err
	}
	return out.Error.toError()
}

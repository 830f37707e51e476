// Package rafttransport implements the peer-to-peer RPC surface pkg/raft
// declares but deliberately leaves unimplemented (see raft.Transport's doc
// comment): a mutually-authenticated gRPC client/server pair carrying
// Vote, AppendEntries, and UpdatePeers between shard members, mirroring
// the teacher's mTLS-secured pkg/api gRPC server.
//
// There is no .proto file here: the request/response types already live in
// pkg/raft as plain structs, so this package registers a gob-based grpc
// codec instead of generating protobuf bindings for types that would only
// mirror ones that already exist.
package rafttransport

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"sync"

	"github.com/jmapstore/core/pkg/log"
	"github.com/jmapstore/core/pkg/raft"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding"
)

const codecName = "jmapcore-gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("rafttransport: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("rafttransport: gob decode: %w", err)
	}
	return nil
}

func (gobCodec) Name() string { return codecName }

// voteEnvelope carries the candidate's PeerID alongside its VoteRequest:
// raft.VoteRequest itself has no sender field, since the in-process
// Transport interface receives the candidate from the Peer argument
// instead, which has no wire equivalent.
type voteEnvelope struct {
	From raft.PeerID
	Req  raft.VoteRequest
}

type appendEntriesEnvelope struct {
	Req raft.AppendEntriesRequest
}

type updatePeersEnvelope struct {
	Req raft.UpdatePeersRequest
}

type ackEnvelope struct{}

const serviceName = "jmapcore.raft.Transport"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*raftRPCServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Vote", Handler: voteHandler},
		{MethodName: "AppendEntries", Handler: appendEntriesHandler},
		{MethodName: "UpdatePeers", Handler: updatePeersHandler},
	},
}

type raftRPCServer interface {
	Vote(ctx context.Context, env *voteEnvelope) (*raft.VoteResponse, error)
	AppendEntries(ctx context.Context, env *appendEntriesEnvelope) (*raft.AppendEntriesResponse, error)
	UpdatePeers(ctx context.Context, env *updatePeersEnvelope) (*ackEnvelope, error)
}

func voteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(voteEnvelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(raftRPCServer).Vote(ctx, in)
}

func appendEntriesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(appendEntriesEnvelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(raftRPCServer).AppendEntries(ctx, in)
}

func updatePeersHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(updatePeersEnvelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(raftRPCServer).UpdatePeers(ctx, in)
}

// Server exposes one raft.Node's Vote/AppendEntries/UpdatePeers handlers
// over a gRPC listener secured with peer certificates issued by
// pkg/security's CertAuthority.
type Server struct {
	node *raft.Node
	grpc *grpc.Server
}

// NewServer wraps node behind a gRPC server using creds for mTLS.
func NewServer(node *raft.Node, creds credentials.TransportCredentials) *Server {
	s := &Server{node: node, grpc: grpc.NewServer(grpc.Creds(creds))}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks accepting connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error { return s.grpc.Serve(lis) }

// Stop gracefully drains in-flight RPCs and shuts the listener down.
func (s *Server) Stop() { s.grpc.GracefulStop() }

func (s *Server) Vote(_ context.Context, env *voteEnvelope) (*raft.VoteResponse, error) {
	resp := s.node.HandleVoteRequest(env.From, env.Req)
	return &resp, nil
}

func (s *Server) AppendEntries(_ context.Context, env *appendEntriesEnvelope) (*raft.AppendEntriesResponse, error) {
	resp := s.node.HandleAppendEntries(env.Req)
	return &resp, nil
}

func (s *Server) UpdatePeers(_ context.Context, env *updatePeersEnvelope) (*ackEnvelope, error) {
	s.node.HandleUpdatePeers(env.Req)
	return &ackEnvelope{}, nil
}

// Client implements raft.Transport over gRPC, dialing each peer lazily and
// caching the connection for reuse across RPCs.
type Client struct {
	self  raft.PeerID
	creds credentials.TransportCredentials

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewClient builds a Transport that authenticates as self using creds.
func NewClient(self raft.PeerID, creds credentials.TransportCredentials) *Client {
	return &Client{self: self, creds: creds, conns: make(map[string]*grpc.ClientConn)}
}

func (c *Client) connFor(addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.conns[addr]; ok {
		return cc, nil
	}
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(c.creds))
	if err != nil {
		return nil, fmt.Errorf("rafttransport: dial %s: %w", addr, err)
	}
	c.conns[addr] = cc
	return cc, nil
}

func (c *Client) invoke(ctx context.Context, addr, method string, req, reply interface{}) error {
	cc, err := c.connFor(addr)
	if err != nil {
		return err
	}
	return cc.Invoke(ctx, "/"+serviceName+"/"+method, req, reply, grpc.CallContentSubtype(codecName))
}

func (c *Client) SendVote(ctx context.Context, peer raft.Peer, req raft.VoteRequest) (raft.VoteResponse, error) {
	var reply raft.VoteResponse
	err := c.invoke(ctx, peer.Address, "Vote", &voteEnvelope{From: c.self, Req: req}, &reply)
	if err != nil {
		log.Logger.Debug().Err(err).Uint64("peer", uint64(peer.ID)).Msg("rafttransport: vote RPC failed")
	}
	return reply, err
}

func (c *Client) SendAppendEntries(ctx context.Context, peer raft.Peer, req raft.AppendEntriesRequest) (raft.AppendEntriesResponse, error) {
	var reply raft.AppendEntriesResponse
	err := c.invoke(ctx, peer.Address, "AppendEntries", &appendEntriesEnvelope{Req: req}, &reply)
	if err != nil {
		log.Logger.Debug().Err(err).Uint64("peer", uint64(peer.ID)).Msg("rafttransport: appendEntries RPC failed")
	}
	return reply, err
}

func (c *Client) SendUpdatePeers(ctx context.Context, peer raft.Peer, req raft.UpdatePeersRequest) error {
	var reply ackEnvelope
	err := c.invoke(ctx, peer.Address, "UpdatePeers", &updatePeersEnvelope{Req: req}, &reply)
	if err != nil {
		log.Logger.Debug().Err(err).Uint64("peer", uint64(peer.ID)).Msg("rafttransport: updatePeers RPC failed")
	}
	return err
}

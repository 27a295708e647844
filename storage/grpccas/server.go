package grpccas

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/crx/cidutil"
	"xdao.co/crx/storage"
)

// Server exposes a storage.Store over the container store service.
//
// Wrap Store in a storage.ValidatingStore to refuse containers that do not
// verify; refusals reach clients as storage.ErrRejected.
type Server struct {
	UnimplementedContainerStoreServer
	Store storage.Store
}

func (s *Server) Put(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.Unavailable, "no store configured")
	}
	b := in.GetValue()
	expected, err := cidutil.ContainerCID(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.Store.Put(b)
	if err != nil {
		return nil, toStatus(err)
	}
	if !id.Equals(expected) {
		return nil, toStatus(storage.ErrCIDMismatch)
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.Unavailable, "no store configured")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, toStatus(storage.ErrInvalidCID)
	}
	b, err := s.Store.Get(id)
	if err != nil {
		return nil, toStatus(err)
	}
	if !cidutil.Matches(id, b) {
		return nil, toStatus(storage.ErrCIDMismatch)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.Unavailable, "no store configured")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, toStatus(storage.ErrInvalidCID)
	}
	return wrapperspb.Bool(s.Store.Has(id)), nil
}

// LoggingInterceptor logs one line per RPC at debug level, or at warn
// level when the call fails.
func LoggingInterceptor(logger *log.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if logger == nil {
			return resp, err
		}
		kv := []interface{}{"method", info.FullMethod, "code", status.Code(err), "elapsed", time.Since(start)}
		if err != nil {
			logger.Warn("rpc failed", append(kv, "err", err)...)
		} else {
			logger.Debug("rpc", kv...)
		}
		return resp, err
	}
}

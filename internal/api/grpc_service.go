package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gigflow/internal/database"
	"gigflow/internal/marketplace"
	"gigflow/internal/money"
	"gigflow/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	marketplaceServiceName = "gigflow.marketplace.v1.Marketplace"
	methodCheckFunding     = "/" + marketplaceServiceName + "/CheckFunding"
	methodListGigs         = "/" + marketplaceServiceName + "/ListGigs"
)

// MarketplaceServer is the gRPC surface. Requests and responses are
// structpb.Struct documents shaped like the HTTP JSON bodies.
type MarketplaceServer interface {
	CheckFunding(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListGigs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var marketplaceServiceDesc = grpc.ServiceDesc{
	ServiceName: marketplaceServiceName,
	HandlerType: (*MarketplaceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckFunding", Handler: unaryHandler(methodCheckFunding, MarketplaceServer.CheckFunding)},
		{MethodName: "ListGigs", Handler: unaryHandler(methodListGigs, MarketplaceServer.ListGigs)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gigflow/marketplace/v1/marketplace.proto",
}

func RegisterMarketplaceServer(s grpc.ServiceRegistrar, srv MarketplaceServer) {
	s.RegisterService(&marketplaceServiceDesc, srv)
}

type unaryMethod func(MarketplaceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(MarketplaceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type marketplaceGRPC struct {
	svc Marketplace
}

func NewMarketplaceGRPC(svc Marketplace) MarketplaceServer {
	return &marketplaceGRPC{svc: svc}
}

// CheckFunding takes {"budget": ..., "fees": [...]}; amounts may be numbers,
// strings or null.
func (m *marketplaceGRPC) CheckFunding(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	budget := amountOf(fields["budget"])

	var fees []money.Amount
	if list := fields["fees"].GetListValue(); list != nil {
		fees = make([]money.Amount, 0, len(list.GetValues()))
		for _, v := range list.GetValues() {
			fees = append(fees, amountOf(v))
		}
	}

	return toStruct(m.svc.CheckFunding(budget, fees))
}

// ListGigs takes {"view", "city", "genre", "q", "owner_id", "viewer_id"}.
func (m *marketplaceGRPC) ListGigs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	f := service.ListFilter{
		View:    service.ParseView(fields["view"].GetStringValue()),
		City:    fields["city"].GetStringValue(),
		Genre:   fields["genre"].GetStringValue(),
		Query:   fields["q"].GetStringValue(),
		OwnerID: int64(fields["owner_id"].GetNumberValue()),
		Viewer:  int64(fields["viewer_id"].GetNumberValue()),
	}

	gigs, err := m.svc.ListGigs(ctx, f)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"view": f.View, "gigs": gigs})
}

func amountOf(v *structpb.Value) money.Amount {
	if v == nil {
		return money.Amount{}
	}
	c, ok := money.ParseCurrencyValue(v.AsInterface())
	if !ok {
		return money.Amount{}
	}
	return money.NewAmount(c)
}

// toStruct converts v through its JSON form so the wire shape matches HTTP.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

func grpcError(err error) error {
	var gerr *marketplace.GuardError
	switch {
	case errors.As(err, &gerr):
		return status.Error(codes.FailedPrecondition, gerr.Error())
	case errors.Is(err, database.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, database.ErrDuplicateApplication):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

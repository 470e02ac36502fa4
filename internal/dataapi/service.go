package dataapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rafaeljc/daffodil/internal/cache"
	"github.com/rafaeljc/daffodil/internal/experiment"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "daffodil.v1.DataPlane"

// Full method names, as seen by interceptors and metrics.
const (
	MethodGetUserExperiments = "/" + ServiceName + "/GetUserExperiments"
	MethodGetBannerMixture   = "/" + ServiceName + "/GetBannerMixture"
	MethodInvalidateUser     = "/" + ServiceName + "/InvalidateUser"
)

// UserRequest addresses a single user.
type UserRequest struct {
	UserID string `json:"user_id"`
}

// UserExperimentsResponse carries a user's assignments and banner mixture.
type UserExperimentsResponse struct {
	UserID        string                  `json:"user_id"`
	Experiments   []experiment.Assignment `json:"experiments"`
	BannerMixture *cache.BannerMixture    `json:"banner_mixture"`
	Source        string                  `json:"source"`
}

// BannerMixtureResponse carries a user's banner mixture; nil when the user has
// no banner-bearing experiment.
type BannerMixtureResponse struct {
	UserID        string               `json:"user_id"`
	BannerMixture *cache.BannerMixture `json:"banner_mixture"`
}

// InvalidateUserResponse acknowledges an invalidation.
type InvalidateUserResponse struct{}

// DataPlaneServer is the server API for the DataPlane service.
type DataPlaneServer interface {
	GetUserExperiments(context.Context, *UserRequest) (*UserExperimentsResponse, error)
	GetBannerMixture(context.Context, *UserRequest) (*BannerMixtureResponse, error)
	InvalidateUser(context.Context, *UserRequest) (*InvalidateUserResponse, error)
}

// ServiceDesc describes the DataPlane service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DataPlaneServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetUserExperiments", Handler: getUserExperimentsHandler},
		{MethodName: "GetBannerMixture", Handler: getBannerMixtureHandler},
		{MethodName: "InvalidateUser", Handler: invalidateUserHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "daffodil/v1/data_plane",
}

func getUserExperimentsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UserRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataPlaneServer).GetUserExperiments(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetUserExperiments}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DataPlaneServer).GetUserExperiments(ctx, req.(*UserRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBannerMixtureHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UserRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataPlaneServer).GetBannerMixture(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetBannerMixture}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DataPlaneServer).GetBannerMixture(ctx, req.(*UserRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func invalidateUserHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UserRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataPlaneServer).InvalidateUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodInvalidateUser}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DataPlaneServer).InvalidateUser(ctx, req.(*UserRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is a DataPlane client speaking the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetUserExperiments(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*UserExperimentsResponse, error) {
	out := new(UserExperimentsResponse)
	if err := c.invoke(ctx, MethodGetUserExperiments, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBannerMixture(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*BannerMixtureResponse, error) {
	out := new(BannerMixtureResponse)
	if err := c.invoke(ctx, MethodGetBannerMixture, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) InvalidateUser(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*InvalidateUserResponse, error) {
	out := new(InvalidateUserResponse)
	if err := c.invoke(ctx, MethodInvalidateUser, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

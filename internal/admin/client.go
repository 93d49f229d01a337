package admin

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"accessdash/internal/cache"
)

type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial connects to a plaintext admin listener. The connection is lazy; the
// first call surfaces an unreachable address.
func Dial(addr string, token string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, token), nil
}

func NewClient(conn *grpc.ClientConn, token string) *Client {
	return &Client{conn: conn, token: token}
}

func (c *Client) Stats(ctx context.Context) (cache.Stats, error) {
	if c == nil {
		return cache.Stats{}, grpc.ErrClientConnClosing
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statsMethod, &emptypb.Empty{}, out); err != nil {
		return cache.Stats{}, err
	}
	fields := out.GetFields()
	return cache.Stats{
		Hits:    uint64(fields["hits"].GetNumberValue()),
		Misses:  uint64(fields["misses"].GetNumberValue()),
		Size:    int(fields["size"].GetNumberValue()),
		HitRate: fields["hit_rate"].GetNumberValue(),
	}, nil
}

func (c *Client) Clear(ctx context.Context) error {
	if c == nil {
		return grpc.ErrClientConnClosing
	}
	return c.conn.Invoke(c.withToken(ctx), clearMethod, &emptypb.Empty{}, new(emptypb.Empty))
}

func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	if c == nil {
		return false, grpc.ErrClientConnClosing
	}
	out := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(c.withToken(ctx), deleteMethod, wrapperspb.String(key), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// Healthy asks the standard health service about the cache admin service.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	if c == nil {
		return false, grpc.ErrClientConnClosing
	}
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) withToken(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, authorizationKey, "Bearer "+c.token)
}

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/sipeed/picocrud/pkg/app"
)

// Client calls ChildService. Errors come back classified by the domain
// sentinels, so domain.StatusOf works on them.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial connects to target without transport security; pass
// grpc.WithTransportCredentials in opts to override.
func Dial(target, token string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, token: token}, nil
}

// Execute invokes the method named by cmd.Operation.
func (c *Client) Execute(ctx context.Context, cmd app.Command) (*app.Reply, error) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out := new(app.Reply)
	if err := c.conn.Invoke(ctx, FullMethod(cmd.Operation), &cmd, out); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

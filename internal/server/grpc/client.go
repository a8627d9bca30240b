package grpc

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/emmett/hark/internal/supervisor"
)

// Client calls hark.v1.Listener
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to a listener service at addr without transport security
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes a connection opened by Dial
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Start(ctx context.Context) error {
	return c.cc.Invoke(ctx, methodStart, &emptypb.Empty{}, &emptypb.Empty{})
}

func (c *Client) Stop(ctx context.Context) error {
	return c.cc.Invoke(ctx, methodStop, &emptypb.Empty{}, &emptypb.Empty{})
}

func (c *Client) SetTriggerWords(ctx context.Context, words []string) error {
	values := make([]*structpb.Value, len(words))
	for i, w := range words {
		values[i] = structpb.NewStringValue(w)
	}
	return c.cc.Invoke(ctx, methodSetTriggerWords, &structpb.ListValue{Values: values}, &emptypb.Empty{})
}

func (c *Client) Status(ctx context.Context) (supervisor.Status, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodStatus, &emptypb.Empty{}, out); err != nil {
		return supervisor.Status{}, err
	}
	var st supervisor.Status
	if err := fromStruct(out, &st); err != nil {
		return supervisor.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// Events streams supervisor events to fn until ctx ends, the server closes
// the stream or fn returns an error.
func (c *Client) Events(ctx context.Context, fn func(supervisor.Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.cc.NewStream(ctx, &ListenerServiceDesc.Streams[0], methodEvents)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		var ev supervisor.Event
		if err := fromStruct(msg, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

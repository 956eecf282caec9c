// Package client talks to a running frontdeskd over its Unix socket.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call invokes service/method with req encoded as a Struct and decodes the
// reply into resp. Either may be nil.
func (c *Client) Call(ctx context.Context, service, method string, req, resp any) error {
	in := &structpb.Struct{}
	if req != nil {
		if err := encode(req, in); err != nil {
			return err
		}
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+service+"/"+method, in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return decode(out, resp)
}

// Event is one item of the WatchEvents stream.
type Event struct {
	Kind      string          `json:"kind"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

var watchDesc = &grpc.StreamDesc{StreamName: "WatchEvents", ServerStreams: true}

// Watch streams daemon events whose kind starts with prefix until ctx ends or
// fn returns an error.
func (c *Client) Watch(ctx context.Context, service, prefix string, fn func(Event) error) error {
	stream, err := c.conn.NewStream(ctx, watchDesc, "/"+service+"/WatchEvents")
	if err != nil {
		return err
	}
	in := &structpb.Struct{}
	if err := encode(map[string]string{"prefix": prefix}, in); err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := &structpb.Struct{}
		if err := stream.RecvMsg(out); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		var evt Event
		if err := decode(out, &evt); err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

// Healthy reports whether the daemon answers the standard health check.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func encode(v any, s *structpb.Struct) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return protojson.Unmarshal(raw, s)
}

func decode(s *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(raw, v)
}

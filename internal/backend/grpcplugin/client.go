// Package grpcplugin implements backend.Adapter family members against an
// out-of-process inference plugin reached over gRPC, grounded on
// nupi-ai-plugin-vad-local-silero's internal/server/server.go: a single
// long-lived service, per-session engine isolation, and a lazily-minted
// session handle. That example's own message/service types
// (napv1 "github.com/nupi-ai/nupi/api/nap/v1") live in a sibling module
// this pack doesn't carry, so this package builds its wire contract from
// the protobuf well-known types (google.golang.org/protobuf/types/known)
// instead of generated code, and drives them with grpc.ClientConn's
// Invoke/NewStream directly rather than a generated client stub.
package grpcplugin

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/voiced-ai/voiced/internal/backend"
)

const serviceName = "voiced.plugin.v1.InferencePlugin"

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

var serverStreamDesc = &grpc.StreamDesc{ServerStreams: true}

// Client dials an inference plugin process and is shared by the LLM, STT,
// and TTS adapter views onto it (a single plugin binary may host more
// than one model family, as nupi's adapter hosts VAD alone).
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a plugin listening at target, e.g. "localhost:50061".
// Callers own the returned *Client and must Close it.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial inference plugin at %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	return c.conn.Invoke(ctx, fullMethod(method), req, reply)
}

func (c *Client) serverStream(ctx context.Context, method string, req any) (grpc.ClientStream, error) {
	stream, err := c.conn.NewStream(ctx, serverStreamDesc, fullMethod(method))
	if err != nil {
		return nil, fmt.Errorf("open %s stream: %w", method, err)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("send %s request: %w", method, err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close %s send side: %w", method, err)
	}
	return stream, nil
}

// pluginHandle is the opaque session reference minted by Open, shared
// across every adapter view of the same loaded model.
type pluginHandle struct {
	id       string
	capacity int32
}

func (c *Client) open(ctx context.Context, path string) (*pluginHandle, error) {
	openResp := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, "Open", wrapperspb.String(path), openResp); err != nil {
		return nil, fmt.Errorf("open plugin session for %q: %w", path, err)
	}
	capResp := new(wrapperspb.Int32Value)
	if err := c.invoke(ctx, "ContextCapacity", wrapperspb.String(openResp.GetValue()), capResp); err != nil {
		return nil, fmt.Errorf("query context capacity for %q: %w", path, err)
	}
	return &pluginHandle{id: openResp.GetValue(), capacity: capResp.GetValue()}, nil
}

func (c *Client) close(h *pluginHandle) error {
	return c.invoke(context.Background(), "Close", wrapperspb.String(h.id), new(emptypb.Empty))
}

func (c *Client) contextUsage(h *pluginHandle) int {
	resp := new(wrapperspb.Int32Value)
	if err := c.invoke(context.Background(), "ContextUsage", wrapperspb.String(h.id), resp); err != nil {
		return 0
	}
	return int(resp.GetValue())
}

func asPluginHandle(h backend.Handle) *pluginHandle {
	hh, ok := h.(*pluginHandle)
	if !ok {
		panic("grpcplugin: handle belongs to a different adapter family")
	}
	return hh
}

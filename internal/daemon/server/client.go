package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client talks to a running tray host.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the control API at addr ("host:port"). The connection
// is established lazily on the first call.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetStatus returns the tray host's status.
func (c *Client) GetStatus(ctx context.Context) (*DaemonStatus, error) {
	out := new(DaemonStatus)
	if err := c.conn.Invoke(ctx, fullMethod("GetStatus"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListBookmarks returns the bookmarks with their job state.
func (c *Client) ListBookmarks(ctx context.Context) (*BookmarkList, error) {
	out := new(BookmarkList)
	if err := c.conn.Invoke(ctx, fullMethod("ListBookmarks"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunAction runs an action on a bookmark and waits for it to finish.
func (c *Client) RunAction(ctx context.Context, req *ActionRequest) (*ActionResult, error) {
	out := new(ActionResult)
	if err := c.conn.Invoke(ctx, fullMethod("RunAction"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListProviders returns the backends a bookmark can be created with.
func (c *Client) ListProviders(ctx context.Context) (*ProviderList, error) {
	out := new(ProviderList)
	if err := c.conn.Invoke(ctx, fullMethod("ListProviders"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBookmark returns a remote's stored configuration.
func (c *Client) GetBookmark(ctx context.Context, name string) (*BookmarkConfig, error) {
	out := new(BookmarkConfig)
	if err := c.conn.Invoke(ctx, fullMethod("GetBookmark"), &BookmarkRef{Name: name}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateBookmark creates a remote in the rclone config.
func (c *Client) CreateBookmark(ctx context.Context, req *BookmarkConfigRequest) error {
	return c.conn.Invoke(ctx, fullMethod("CreateBookmark"), req, &emptypb.Empty{})
}

// UpdateBookmark changes parameters of an existing remote.
func (c *Client) UpdateBookmark(ctx context.Context, req *BookmarkConfigRequest) error {
	return c.conn.Invoke(ctx, fullMethod("UpdateBookmark"), req, &emptypb.Empty{})
}

// DeleteBookmark removes a remote from the rclone config.
func (c *Client) DeleteBookmark(ctx context.Context, name string) error {
	return c.conn.Invoke(ctx, fullMethod("DeleteBookmark"), &BookmarkRef{Name: name}, &emptypb.Empty{})
}

// Shutdown asks the tray host to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.conn.Invoke(ctx, fullMethod("Shutdown"), &emptypb.Empty{}, &emptypb.Empty{})
}

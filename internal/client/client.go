// Package client is the typed gRPC client inventoryctl uses to talk to
// inventoryd over its unix socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/DarkarBlays/inventario/internal/api"
	"github.com/DarkarBlays/inventario/internal/reconcile"
	"github.com/DarkarBlays/inventario/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client wraps a gRPC connection to the daemon. Errors from the daemon are
// mapped back onto the store taxonomy (store.ErrNotFound and friends).
type Client struct {
	conn grpc.ClientConnInterface
	// closer is nil when the connection is owned by the caller.
	closer io.Closer
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
	return &Client{conn: conn, closer: conn}, nil
}

// NewFromConn wraps an existing connection. Close does not close it.
func NewFromConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return api.FromStatus(c.conn.Invoke(ctx, method, in, out))
}

// CreateProduct creates a product and returns it as stored.
func (c *Client) CreateProduct(ctx context.Context, f store.ProductFields) (*store.Product, error) {
	in, err := api.EncodeStruct(f)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.ProductCreateMethod, in, out); err != nil {
		return nil, err
	}
	var p store.Product
	if err := api.DecodeStruct(out, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct applies patch to product id and returns the changed count.
func (c *Client) UpdateProduct(ctx context.Context, id int64, patch store.ProductPatch) (int64, error) {
	in, err := api.EncodeStruct(api.UpdateRequest{ID: id, Patch: patch})
	if err != nil {
		return 0, err
	}
	out := new(wrapperspb.Int64Value)
	if err := c.invoke(ctx, api.ProductUpdateMethod, in, out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// DeleteProduct deletes product id and returns the changed count.
func (c *Client) DeleteProduct(ctx context.Context, id int64) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.invoke(ctx, api.ProductDeleteMethod, wrapperspb.Int64(id), out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// GetProduct returns product id.
func (c *Client) GetProduct(ctx context.Context, id int64) (*store.Product, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.ProductGetMethod, wrapperspb.Int64(id), out); err != nil {
		return nil, err
	}
	var p store.Product
	if err := api.DecodeStruct(out, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns every product.
func (c *Client) ListProducts(ctx context.Context) ([]store.Product, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, api.ProductListMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var products []store.Product
	if err := api.DecodeList(out, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// DrainPending returns up to limit pending entries (limit <= 0 for all).
func (c *Client) DrainPending(ctx context.Context, limit int) ([]store.OutboxEntry, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, api.SyncDrainPendingMethod, wrapperspb.Int32(int32(limit)), out); err != nil {
		return nil, err
	}
	var entries []store.OutboxEntry
	if err := api.DecodeList(out, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Acknowledge marks one entry delivered.
func (c *Client) Acknowledge(ctx context.Context, entryID int64) error {
	return c.invoke(ctx, api.SyncAcknowledgeMethod, wrapperspb.Int64(entryID), new(emptypb.Empty))
}

// Report submits delivery results for a drained batch.
func (c *Client) Report(ctx context.Context, results []reconcile.Result) (*reconcile.Summary, error) {
	in, err := api.EncodeList(results)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.SyncReportMethod, in, out); err != nil {
		return nil, err
	}
	var sum reconcile.Summary
	if err := api.DecodeStruct(out, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// ListOutbox returns outbox entries of any status after afterID.
func (c *Client) ListOutbox(ctx context.Context, afterID int64, limit int) ([]store.OutboxEntry, error) {
	in, err := api.EncodeStruct(api.OutboxQuery{AfterID: afterID, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, api.SyncListOutboxMethod, in, out); err != nil {
		return nil, err
	}
	var entries []store.OutboxEntry
	if err := api.DecodeList(out, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*api.StatusReport, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.SyncGetStatusMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var r api.StatusReport
	if err := api.DecodeStruct(out, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Watch streams events whose kind starts with prefix ("" for all) to fn
// until ctx is done, the stream ends or fn returns an error.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(api.Event) error) error {
	desc := &api.SyncServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, api.SyncWatchEventsMethod)
	if err != nil {
		return api.FromStatus(err)
	}
	x := &grpc.GenericClientStream[wrapperspb.StringValue, structpb.Struct]{ClientStream: stream}
	if err := x.SendMsg(wrapperspb.String(prefix)); err != nil {
		return api.FromStatus(err)
	}
	if err := x.CloseSend(); err != nil {
		return api.FromStatus(err)
	}

	for {
		msg, err := x.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return api.FromStatus(err)
		}
		var evt api.Event
		if err := api.DecodeStruct(msg, &evt); err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

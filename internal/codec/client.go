// Package codec carries the collaborator contracts over gRPC so classification,
// generation, verification and scoring can run in a separate inference service.
package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region client-struct
// Client calls a remote collaborator service. It satisfies every collab contract.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}
// #endregion client-struct

// #region constructor
// NewClient connects to the collaborator gRPC server at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection.
// Used for testing without a real network listener.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Suite exposes the client in every collaborator role.
func (c *Client) Suite() collab.Suite {
	return collab.Suite{Classifier: c, Generator: c, Verifier: c, Evaluator: c}
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region invoke
func (c *Client) invoke(ctx context.Context, method, op string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s rpc: %w: %w", op, collab.ErrUnavailable, err)
	}
	return out, nil
}
// #endregion invoke

// #region classify
// Classify implements collab.Classifier.
func (c *Client) Classify(ctx context.Context, text string) (narrative.Label, error) {
	in, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		return "", fmt.Errorf("encode classify request: %w", err)
	}
	out, err := c.invoke(ctx, methodClassify, "classify", in)
	if err != nil {
		return "", err
	}
	return narrative.Label(str(out, "label")), nil
}
// #endregion classify

// #region generate
// Generate implements collab.Generator.
func (c *Client) Generate(ctx context.Context, req collab.GenerateRequest) (string, error) {
	in, err := encodeGenerateRequest(req)
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}
	out, err := c.invoke(ctx, methodGenerate, "generate", in)
	if err != nil {
		return "", err
	}
	return str(out, "text"), nil
}
// #endregion generate

// #region verify
// Verify implements collab.Verifier.
func (c *Client) Verify(ctx context.Context, text string, target narrative.Label) (collab.Verdict, error) {
	in, err := structpb.NewStruct(map[string]any{"text": text, "target": string(target)})
	if err != nil {
		return collab.Verdict{}, fmt.Errorf("encode verify request: %w", err)
	}
	out, err := c.invoke(ctx, methodVerify, "verify", in)
	if err != nil {
		return collab.Verdict{}, err
	}
	return decodeVerdict(out), nil
}
// #endregion verify

// #region evaluate
// Evaluate implements collab.Evaluator.
func (c *Client) Evaluate(ctx context.Context, text string, steps []narrative.Step) (collab.Scores, error) {
	in, err := encodeEvaluateRequest(text, steps)
	if err != nil {
		return collab.Scores{}, fmt.Errorf("encode evaluate request: %w", err)
	}
	out, err := c.invoke(ctx, methodEvaluate, "evaluate", in)
	if err != nil {
		return collab.Scores{}, err
	}
	return decodeScores(out), nil
}
// #endregion evaluate

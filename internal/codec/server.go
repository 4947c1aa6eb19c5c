package codec

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
)

// #region server

// collaboratorService is the handler type checked by grpc.RegisterService.
type collaboratorService interface {
	classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// Server exposes a collab.Suite over gRPC. Roles left nil answer Unimplemented.
type Server struct {
	suite collab.Suite
	log   logger.Logger
}

// Register attaches the collaborator service for suite to s.
func Register(s *grpc.Server, suite collab.Suite, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	srv := &Server{suite: suite, log: log}
	s.RegisterService(&serviceDesc, srv)
	return srv
}

// #endregion server

// #region service-desc

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*collaboratorService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: unary(methodClassify, collaboratorService.classify)},
		{MethodName: "Generate", Handler: unary(methodGenerate, collaboratorService.generate)},
		{MethodName: "Verify", Handler: unary(methodVerify, collaboratorService.verify)},
		{MethodName: "Evaluate", Handler: unary(methodEvaluate, collaboratorService.evaluate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "narrative/v1/collaborator.proto",
}

func unary(fullMethod string, call func(collaboratorService, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		svc := srv.(collaboratorService)
		if interceptor == nil {
			return call(svc, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(svc, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc

// #region handlers

func (s *Server) fail(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return status.FromContextError(ctx.Err()).Err()
	}
	s.log.Error(ctx, "collaborator call failed", logger.String("operation", op), logger.Error(err))
	return status.Errorf(codes.Unavailable, "%s: %v", op, err)
}

func (s *Server) classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.suite.Classifier == nil {
		return nil, status.Error(codes.Unimplemented, "classifier not configured")
	}
	label, err := s.suite.Classifier.Classify(ctx, str(in, "text"))
	if err != nil {
		return nil, s.fail(ctx, "classify", err)
	}
	return structpb.NewStruct(map[string]any{"label": string(label)})
}

func (s *Server) generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.suite.Generator == nil {
		return nil, status.Error(codes.Unimplemented, "generator not configured")
	}
	text, err := s.suite.Generator.Generate(ctx, decodeGenerateRequest(in))
	if err != nil {
		return nil, s.fail(ctx, "generate", err)
	}
	return structpb.NewStruct(map[string]any{"text": text})
}

func (s *Server) verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.suite.Verifier == nil {
		return nil, status.Error(codes.Unimplemented, "verifier not configured")
	}
	v, err := s.suite.Verifier.Verify(ctx, str(in, "text"), narrative.Label(str(in, "target")))
	if err != nil {
		return nil, s.fail(ctx, "verify", err)
	}
	return encodeVerdict(v)
}

func (s *Server) evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.suite.Evaluator == nil {
		return nil, status.Error(codes.Unimplemented, "evaluator not configured")
	}
	text, steps := decodeEvaluateRequest(in)
	sc, err := s.suite.Evaluator.Evaluate(ctx, text, steps)
	if err != nil {
		return nil, s.fail(ctx, "evaluate", err)
	}
	return encodeScores(sc)
}

// #endregion handlers

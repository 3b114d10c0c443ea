package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/auth"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/logger"
)

// CodeTrailer carries the domain error code on failed calls.
const CodeTrailer = "x-picocrud-code"

// Executor runs one child command.
type Executor interface {
	Execute(ctx context.Context, cmd app.Command, user domain.User) (app.Reply, error)
}

type userKey struct{}

// Server serves ChildService over gRPC.
type Server struct {
	exec     Executor
	verifier *auth.Verifier
	grpc     *grpc.Server
}

func NewServer(exec Executor, verifier *auth.Verifier, opts ...grpc.ServerOption) *Server {
	s := &Server{exec: exec, verifier: verifier}
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.logCalls, s.authenticate),
	}, opts...)
	s.grpc = grpc.NewServer(opts...)
	s.grpc.RegisterService(&ServiceDesc, s)
	return s
}

// Execute implements ChildServiceServer.
func (s *Server) Execute(ctx context.Context, cmd *app.Command) (*app.Reply, error) {
	user, ok := ctx.Value(userKey{}).(domain.User)
	if !ok {
		user = domain.Anonymous
	}
	reply, err := s.exec.Execute(ctx, *cmd, user)
	if err != nil {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(CodeTrailer, domain.CodeOf(err)))
		return nil, toStatus(err)
	}
	return &reply, nil
}

// Serve blocks serving lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Run listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	logger.InfoCF("rpc", "gRPC server starting", map[string]interface{}{"addr": addr})

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// Stop drains in-flight calls, then forces the server closed after five
// seconds.
func (s *Server) Stop() {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.grpc.Stop()
	}
}

func (s *Server) authenticate(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			token = auth.BearerToken(vals[0])
		}
	}
	user, err := s.verifier.Verify(token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return handler(context.WithValue(ctx, userKey{}, user), req)
}

func (s *Server) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		logger.WarnCF("rpc", "Call failed", map[string]interface{}{
			"method":      info.FullMethod,
			"code":        status.Code(err).String(),
			"duration_ms": time.Since(start).Milliseconds(),
			"error":       err,
		})
	}
	return resp, err
}

// toStatus maps a domain error onto a gRPC status.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrBadRequest):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrConflict):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrUnauthorized):
		code = codes.Unauthenticated
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// fromStatus turns a gRPC error back into a domain-classified error.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", domain.ErrBadRequest, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", domain.ErrConflict, st.Message())
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, st.Message())
	}
	return err
}

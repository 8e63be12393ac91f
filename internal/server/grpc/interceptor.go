package grpc

import (
	"context"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/dmitrijs2005/stagekeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// protectedMethods need a valid access token. Its session becomes the
// relay session of the call.
var protectedMethods = map[string]struct{}{
	fullMethod("StageBytes"):   {},
	fullMethod("StageStream"):  {},
	fullMethod("ReserveEmpty"): {},
	fullMethod("Delete"):       {},
	fullMethod("Relay"):        {},
	fullMethod("Archive"):      {},
	fullMethod("Sweep"):        {},
}

func (s *GRPCServer) authenticate(ctx context.Context, method string) (context.Context, error) {
	if _, ok := protectedMethods[method]; !ok {
		return ctx, nil
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	sessionID, err := auth.GetSessionIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		s.logger.Debug(ctx, "rejected token", "method", method, "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return auth.WithSession(ctx, sessionID), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type sessionStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *sessionStream) Context() context.Context { return w.ctx }

func (s *GRPCServer) accessTokenStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &sessionStream{ServerStream: ss, ctx: ctx})
}

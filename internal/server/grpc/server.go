package grpc

import (
	"context"
	"io"
	"net"

	"github.com/dmitrijs2005/stagekeeper/internal/logging"
	"github.com/dmitrijs2005/stagekeeper/internal/server/staging"
	"github.com/google/uuid"
	"google.golang.org/grpc"
)

// Store is the staging store as seen by the gRPC surface.
type Store interface {
	StageBytes(ctx context.Context, data []byte) (uuid.UUID, error)
	StageStream(ctx context.Context, src io.Reader, onProgress staging.ProgressFunc) (uuid.UUID, error)
	ReserveEmpty(ctx context.Context) (uuid.UUID, error)
	Load(id uuid.UUID) (io.ReadCloser, bool, error)
	Describe(id uuid.UUID, name string) (staging.FileDescriptor, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List() []staging.Entry
}

type Relayer interface {
	Relay(ctx context.Context, id uuid.UUID, desc staging.FileDescriptor) error
}

type Archiver interface {
	Archive(ctx context.Context, id uuid.UUID, desc staging.FileDescriptor) (string, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Deps are the services behind the gRPC surface. Archive may be nil, in
// which case the Archive call is unimplemented.
type Deps struct {
	Store     Store
	Relay     Relayer
	Archive   Archiver
	Sweeper   Sweeper
	ChunkSize int
}

type GRPCServer struct {
	address   string
	deps      Deps
	logger    logging.Logger
	jwtSecret []byte
}

var _ StagingServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, deps Deps, secretKey string) (*GRPCServer, error) {
	if deps.ChunkSize <= 0 {
		deps.ChunkSize = staging.DefaultChunkSize
	}
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		deps:      deps,
		jwtSecret: []byte(secretKey),
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)
	RegisterStagingServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on l until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, l net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", l.Addr().String())

	if err := srv.Serve(l); err != nil {
		return err
	}

	return nil
}

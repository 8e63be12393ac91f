package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/stagekeeper/internal/client/config"
	"github.com/dmitrijs2005/stagekeeper/internal/common"
	gs "github.com/dmitrijs2005/stagekeeper/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

// Staging is the subset of the staging client used by the commands.
type Staging interface {
	Ping(ctx context.Context, opts ...grpc.CallOption) (string, error)
	StageStream(ctx context.Context, r io.Reader, chunkSize int, opts ...grpc.CallOption) (string, error)
	Load(ctx context.Context, id string, w io.Writer, opts ...grpc.CallOption) (int64, error)
	Describe(ctx context.Context, id, name string, opts ...grpc.CallOption) (*structpb.Struct, error)
	Relay(ctx context.Context, id, name string, opts ...grpc.CallOption) error
	Archive(ctx context.Context, id, name string, opts ...grpc.CallOption) (string, string, error)
	Delete(ctx context.Context, id string, opts ...grpc.CallOption) error
	List(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Sweep(ctx context.Context, opts ...grpc.CallOption) (int64, error)
}

type App struct {
	config *config.Config
	client Staging
	conn   io.Closer
	stdin  io.Reader
	stdout io.Writer
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func NewApp(c *config.Config) (*App, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if c.AccessToken != "" {
		token := c.AccessToken
		opts = append(opts,
			grpc.WithChainUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
				return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
			}),
			grpc.WithChainStreamInterceptor(func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
				return streamer(withAccessToken(ctx, token), desc, cc, method, opts...)
			}),
		)
	}

	conn, err := grpc.NewClient(c.ServerEndpointAddr, opts...)
	if err != nil {
		return nil, err
	}

	return &App{
		config: c,
		client: gs.NewStagingClient(conn),
		conn:   conn,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}, nil
}

func (a *App) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

func (a *App) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.CallTimeout)
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.help()
		return fmt.Errorf("%w: missing command", ErrUsage)
	}

	cmd, rest := args[0], args[1:]
	need := func(n int, usage string) error {
		if len(rest) < n {
			return fmt.Errorf("%w: %s %s", ErrUsage, cmd, usage)
		}
		return nil
	}

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	switch cmd {
	case "help":
		a.help()
		return nil
	case "ping":
		return a.ping(ctx)
	case "token":
		if err := need(1, "<session-id>"); err != nil {
			return err
		}
		return a.token(rest[0])
	case "stage":
		if err := need(1, "<file|->"); err != nil {
			return err
		}
		return a.stage(ctx, rest[0])
	case "load":
		if err := need(1, "<id> [file|-]"); err != nil {
			return err
		}
		out := "-"
		if len(rest) > 1 {
			out = rest[1]
		}
		return a.load(ctx, rest[0], out)
	case "describe":
		if err := need(2, "<id> <name>"); err != nil {
			return err
		}
		return a.describe(ctx, rest[0], rest[1])
	case "relay":
		if err := need(2, "<id> <name>"); err != nil {
			return err
		}
		return a.relay(ctx, rest[0], rest[1])
	case "archive":
		if err := need(2, "<id> <name>"); err != nil {
			return err
		}
		return a.archive(ctx, rest[0], rest[1])
	case "delete":
		if err := need(1, "<id>"); err != nil {
			return err
		}
		return a.delete(ctx, rest[0])
	case "list":
		return a.list(ctx)
	case "sweep":
		return a.sweep(ctx)
	default:
		a.help()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) help() {
	fmt.Fprintln(a.stdout, "Available commands: ping, token, stage, load, describe, relay, archive, delete, list, sweep")
}

package grpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/dmitrijs2005/stagekeeper/internal/server/staging"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func parseID(v string) (uuid.UUID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("id %q: %w", v, common.ErrInvalidArgument)
	}
	return id, nil
}

// fileRefOf extracts the {id, name} pair used by Describe, Relay and Archive.
func fileRefOf(req *structpb.Struct) (uuid.UUID, string, error) {
	fields := req.GetFields()
	id, err := parseID(fields["id"].GetStringValue())
	if err != nil {
		return uuid.Nil, "", err
	}
	name := fields["name"].GetStringValue()
	if name == "" {
		return uuid.Nil, "", fmt.Errorf("name: %w", common.ErrInvalidArgument)
	}
	return id, name, nil
}

func descriptorStruct(d staging.FileDescriptor) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"name":       structpb.NewStringValue(d.Name),
		"extension":  structpb.NewStringValue(d.Extension),
		"size":       structpb.NewNumberValue(float64(d.Size)),
		"created_at": structpb.NewStringValue(d.CreatedAt.UTC().Format(time.RFC3339Nano)),
	}}
}

func (s *GRPCServer) StageBytes(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	id, err := s.deps.Store.StageBytes(ctx, req.GetValue())
	if err != nil {
		s.logger.Error(ctx, "stage bytes failed", "error", err)
		return nil, toStatus(err)
	}
	return wrapperspb.String(id.String()), nil
}

// chunkReader adapts the StageStream receive side to io.Reader.
type chunkReader struct {
	stream StageStreamServer
	buf    []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		m, err := r.stream.Recv()
		if err != nil {
			return 0, err
		}
		r.buf = m.GetValue()
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (s *GRPCServer) StageStream(stream StageStreamServer) error {
	ctx := stream.Context()

	id, err := s.deps.Store.StageStream(ctx, &chunkReader{stream: stream}, func(id uuid.UUID, written int64) {
		s.logger.Debug(ctx, "staging progress", "id", id, "written", written)
	})
	if err != nil {
		s.logger.Error(ctx, "stage stream failed", "error", err)
		return toStatus(err)
	}
	return stream.SendAndClose(wrapperspb.String(id.String()))
}

func (s *GRPCServer) ReserveEmpty(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	id, err := s.deps.Store.ReserveEmpty(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(id.String()), nil
}

func (s *GRPCServer) Load(req *wrapperspb.StringValue, stream LoadServer) error {
	id, err := parseID(req.GetValue())
	if err != nil {
		return toStatus(err)
	}

	rc, ok, err := s.deps.Store.Load(id)
	if err != nil {
		return toStatus(err)
	}
	if !ok {
		return status.Error(codes.NotFound, "not found")
	}
	defer rc.Close()

	buf := make([]byte, s.deps.ChunkSize)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if err := stream.Send(wrapperspb.Bytes(bytes.Clone(buf[:n]))); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return toStatus(&common.StageError{Op: "read", Err: rerr})
		}
	}
}

func (s *GRPCServer) Describe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, name, err := fileRefOf(req)
	if err != nil {
		return nil, toStatus(err)
	}
	d, err := s.deps.Store.Describe(id, name)
	if err != nil {
		return nil, toStatus(err)
	}
	return descriptorStruct(d), nil
}

func (s *GRPCServer) Delete(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	id, err := parseID(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.deps.Store.Delete(ctx, id); err != nil {
		s.logger.Error(ctx, "delete failed", "id", id, "error", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Relay(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	id, name, err := fileRefOf(req)
	if err != nil {
		return nil, toStatus(err)
	}
	d, err := s.deps.Store.Describe(id, name)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.deps.Relay.Relay(ctx, id, d); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Archive returns {key, url}; url is left out when it cannot be presigned.
func (s *GRPCServer) Archive(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.deps.Archive == nil {
		return nil, status.Error(codes.Unimplemented, "archive is not configured")
	}
	id, name, err := fileRefOf(req)
	if err != nil {
		return nil, toStatus(err)
	}
	d, err := s.deps.Store.Describe(id, name)
	if err != nil {
		return nil, toStatus(err)
	}
	key, err := s.deps.Archive.Archive(ctx, id, d)
	if err != nil {
		return nil, toStatus(err)
	}

	out := map[string]any{"key": key}
	if url, err := s.deps.Archive.DownloadURL(ctx, key); err != nil {
		s.logger.Warn(ctx, "could not presign archived object", "key", key, "error", err)
	} else {
		out["url"] = url
	}
	return structpb.NewStruct(out)
}

func (s *GRPCServer) Sweep(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	n := s.deps.Sweeper.Sweep(ctx)
	return wrapperspb.Int64(int64(n)), nil
}

func (s *GRPCServer) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	entries := s.deps.Store.List()
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(entries))}
	for _, e := range entries {
		row := &structpb.Struct{Fields: map[string]*structpb.Value{
			"id":   structpb.NewStringValue(e.ID.String()),
			"size": structpb.NewNumberValue(float64(e.Size)),
		}}
		if !e.ModTime.IsZero() {
			row.Fields["mod_time"] = structpb.NewStringValue(e.ModTime.UTC().Format(time.RFC3339Nano))
		}
		out.Values = append(out.Values, structpb.NewStructValue(row))
	}
	return out, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("OK"), nil
}

package grpc

import (
	"bytes"
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// StagingClient is a thin client for the staging service.
type StagingClient struct {
	cc grpc.ClientConnInterface
}

func NewStagingClient(cc grpc.ClientConnInterface) *StagingClient {
	return &StagingClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StageBytes stages data and returns its id.
func (c *StagingClient) StageBytes(ctx context.Context, data []byte, opts ...grpc.CallOption) (string, error) {
	out, err := invoke[wrapperspb.StringValue](ctx, c.cc, "StageBytes", wrapperspb.Bytes(data), opts...)
	if err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// StageStream streams r to the server in chunks of chunkSize bytes.
func (c *StagingClient) StageStream(ctx context.Context, r io.Reader, chunkSize int, opts ...grpc.CallOption) (string, error) {
	stream, err := c.cc.NewStream(ctx, &StagingServiceDesc.Streams[0], fullMethod("StageStream"), opts...)
	if err != nil {
		return "", err
	}

	if err := sendChunks(stream, r, chunkSize); err != nil {
		return "", err
	}
	if err := stream.CloseSend(); err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// sendChunks sends r in chunks. io.EOF from SendMsg means the server has
// already finished the call; its status is picked up by RecvMsg.
func sendChunks(stream grpc.ClientStream, r io.Reader, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	buf := make([]byte, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := stream.SendMsg(wrapperspb.Bytes(bytes.Clone(buf[:n]))); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func (c *StagingClient) ReserveEmpty(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out, err := invoke[wrapperspb.StringValue](ctx, c.cc, "ReserveEmpty", &emptypb.Empty{}, opts...)
	if err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Load copies the staged payload id into w.
func (c *StagingClient) Load(ctx context.Context, id string, w io.Writer, opts ...grpc.CallOption) (int64, error) {
	stream, err := c.cc.NewStream(ctx, &StagingServiceDesc.Streams[1], fullMethod("Load"), opts...)
	if err != nil {
		return 0, err
	}
	if err := stream.SendMsg(wrapperspb.String(id)); err != nil {
		return 0, err
	}
	if err := stream.CloseSend(); err != nil {
		return 0, err
	}

	var total int64
	for {
		chunk := new(wrapperspb.BytesValue)
		err := stream.RecvMsg(chunk)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk.GetValue())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
}

func (c *StagingClient) Describe(ctx context.Context, id, name string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "Describe", fileRef(id, name), opts...)
}

func (c *StagingClient) Delete(ctx context.Context, id string, opts ...grpc.CallOption) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "Delete", wrapperspb.String(id), opts...)
	return err
}

func (c *StagingClient) Relay(ctx context.Context, id, name string, opts ...grpc.CallOption) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "Relay", fileRef(id, name), opts...)
	return err
}

// Archive moves the staged payload into the archive bucket and returns its
// key and, when the server could presign one, a download URL.
func (c *StagingClient) Archive(ctx context.Context, id, name string, opts ...grpc.CallOption) (key, url string, err error) {
	out, err := invoke[structpb.Struct](ctx, c.cc, "Archive", fileRef(id, name), opts...)
	if err != nil {
		return "", "", err
	}
	f := out.GetFields()
	return f["key"].GetStringValue(), f["url"].GetStringValue(), nil
}

// Sweep runs one sweeper pass and returns the number of evicted files.
func (c *StagingClient) Sweep(ctx context.Context, opts ...grpc.CallOption) (int64, error) {
	out, err := invoke[wrapperspb.Int64Value](ctx, c.cc, "Sweep", &emptypb.Empty{}, opts...)
	if err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

func (c *StagingClient) List(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, "List", &emptypb.Empty{}, opts...)
}

func (c *StagingClient) Ping(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out, err := invoke[wrapperspb.StringValue](ctx, c.cc, "Ping", &emptypb.Empty{}, opts...)
	if err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func fileRef(id, name string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":   structpb.NewStringValue(id),
		"name": structpb.NewStringValue(name),
	}}
}

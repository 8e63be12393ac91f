// Package archive moves staged payloads into an S3-compatible bucket. Like
// the relay, archiving consumes the local stage whatever the outcome.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/dmitrijs2005/stagekeeper/internal/cryptox"
	"github.com/dmitrijs2005/stagekeeper/internal/logging"
	"github.com/dmitrijs2005/stagekeeper/internal/server/staging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return s3.NewPresignClient(c).PresignGetObject(ctx, in, optFns...)
	}
)

// DigestMetadataKey is the object metadata key holding the BLAKE2b-256
// digest of the payload.
const DigestMetadataKey = cryptox.DigestName

// DefaultURLTTL is the lifetime of download URLs handed out for archived
// objects.
const DefaultURLTTL = 15 * time.Minute

// Config addresses the bucket. A zero URLTTL means DefaultURLTTL.
type Config struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	URLTTL       time.Duration
}

// Stage is the part of the staging store the archiver needs.
type Stage interface {
	File(id uuid.UUID) (string, bool)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Archiver struct {
	cfg    Config
	stage  Stage
	logger logging.Logger
	now    func() time.Time
}

func NewArchiver(cfg Config, stage Stage, logger logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Nop{}
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = DefaultURLTTL
	}
	return &Archiver{cfg: cfg, stage: stage, logger: logger.With("module", "archive"), now: time.Now}
}

// StorageKey builds the object key for a staged file.
func StorageKey(d time.Time, id uuid.UUID) string {
	return fmt.Sprintf("staged/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), id)
}

func (a *Archiver) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(a.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.cfg.AccessKey,
			a.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if a.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// Archive uploads staged file id to the bucket and returns its key. The
// local stage is deleted afterwards in every case. Upload failures are
// reported as *common.RelayError.
func (a *Archiver) Archive(ctx context.Context, id uuid.UUID, desc staging.FileDescriptor) (string, error) {
	path, ok := a.stage.File(id)
	if !ok {
		return "", fmt.Errorf("staged file %s: %w", id, common.ErrorNotFound)
	}

	key := StorageKey(a.now(), id)
	err := a.upload(ctx, path, key, desc)

	if derr := a.stage.Delete(ctx, id); derr != nil {
		a.logger.Warn(ctx, "could not delete archived stage", "id", id, "error", derr)
	}

	if err != nil {
		a.logger.Error(ctx, "archive failed", "id", id, "file", desc.Name, "error", err)
		return "", &common.RelayError{FileName: desc.Name, Err: err}
	}
	a.logger.Info(ctx, "archived staged file", "id", id, "bucket", a.cfg.Bucket, "key", key)
	return key, nil
}

func (a *Archiver) upload(ctx context.Context, path, key string, desc staging.FileDescriptor) error {
	f, err := os.Open(path)
	if err != nil {
		return &common.StageError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return &common.StageError{Op: "read", Path: path, Err: err}
	}
	contentType := detectContentType(head[:n], desc.Extension)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return &common.StageError{Op: "seek", Path: path, Err: err}
	}
	digest, size, err := cryptox.DigestHex(f)
	if err != nil {
		return &common.StageError{Op: "read", Path: path, Err: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return &common.StageError{Op: "seek", Path: path, Err: err}
	}

	c, err := a.client(ctx)
	if err != nil {
		return fmt.Errorf("s3 client: %w", err)
	}

	_, err = putObject(c, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"file-name":       desc.Name,
			DigestMetadataKey: digest,
		},
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// sniffLen is how much of the payload is inspected for its content type.
const sniffLen = 512

// detectContentType sniffs head and falls back to the logical extension when
// the content is not recognised.
func detectContentType(head []byte, ext string) string {
	if len(head) > 0 {
		if mt := mimetype.Detect(head); !mt.Is(common.OctetStream) {
			return mt.String()
		}
	}
	if ext != "" {
		if t := mime.TypeByExtension("." + ext); t != "" {
			return t
		}
	}
	return common.OctetStream
}

// DownloadURL returns a presigned GET URL for key, valid for the
// configured URLTTL.
func (a *Archiver) DownloadURL(ctx context.Context, key string) (string, error) {
	c, err := a.client(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(c, ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.cfg.URLTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

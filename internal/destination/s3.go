package destination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/config"
)

// Object metadata keys written with every upload.
const (
	s3MetaChecksum = "checksum"
	s3MetaRecordID = "record-id"
)

// S3Client is the subset of *s3.Client the destination uses.
type S3Client interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Destination stores each record as one object, <prefix><record id><ext>.
// An object already carrying the same checksum is not uploaded again.
type S3Destination struct {
	name     string
	bucket   string
	prefix   string
	client   S3Client
	uploader *manager.Uploader
}

func NewS3Destination(name, bucket, prefix string, client S3Client) *S3Destination {
	return &S3Destination{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// NewS3DestinationFromConfig builds the AWS client from the destination's
// region, endpoint and optional static credentials. Without static
// credentials the default AWS credential chain applies.
func NewS3DestinationFromConfig(ctx context.Context, cfg config.DestinationConfig) (*S3Destination, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Destination(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client), nil
}

func (d *S3Destination) Name() string { return d.name }

func (d *S3Destination) Upload(ctx context.Context, localPath string, meta bridge.UploadMetadata) (*bridge.UploadResult, error) {
	key := d.prefix + meta.RecordID + extension(meta.Format)

	head, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(key)})
	switch {
	case err == nil:
		if meta.Checksum != "" && head.Metadata[s3MetaChecksum] == meta.Checksum {
			return d.result(key), nil
		}
	case !isS3NotFound(err):
		return nil, d.classify(fmt.Errorf("checking for existing object: %w", err))
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, uploadError(d.name, bridge.Permanent(fmt.Errorf("opening staged file: %w", err)))
	}
	defer f.Close()

	metadata := map[string]string{s3MetaRecordID: meta.RecordID}
	if meta.Checksum != "" {
		metadata[s3MetaChecksum] = meta.Checksum
	}
	for _, k := range []string{"source_platform", "source_post_id"} {
		if v := meta.CustomParams[k]; v != "" {
			metadata[k] = v
		}
	}

	_, err = d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(meta.Format)),
		Metadata:    metadata,
	})
	if err != nil {
		return nil, d.classify(fmt.Errorf("putting object %s: %w", key, err))
	}
	return d.result(key), nil
}

func (d *S3Destination) result(key string) *bridge.UploadResult {
	return &bridge.UploadResult{ExternalID: key, ExternalURL: "s3://" + path.Join(d.bucket, key)}
}

// classify marks throttling and server-side failures retryable.
func (d *S3Destination) classify(err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		code := re.HTTPStatusCode()
		retryable := code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
		return &bridge.UploadError{Destination: d.name, Retryable: retryable, Err: err}
	}
	return uploadError(d.name, err)
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

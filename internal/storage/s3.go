package storage

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Scheme is the location prefix handled by S3Backend.
const S3Scheme = "s3"

// ObjectAPI is the subset of the S3 client used for deletion.
type ObjectAPI interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config configures the S3 client built by NewS3Opener.
type S3Config struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// S3Backend deletes objects from S3 or an S3-compatible store.
type S3Backend struct {
	api ObjectAPI
}

// NewS3Backend returns a backend over api.
func NewS3Backend(api ObjectAPI) *S3Backend {
	return &S3Backend{api: api}
}

// NewS3Opener returns an Opener that builds one S3 client per run.
//
// Credentials are resolved eagerly so that a missing or broken credential
// chain surfaces as ErrBackendUnavailable before the first delete.
func NewS3Opener(cfg S3Config) Opener {
	return func(ctx context.Context) (Backend, error) {
		var opts []func(*config.LoadOptions) error
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, unavailable("", fmt.Errorf("load aws config: %w", err))
		}
		if awsCfg.Credentials != nil {
			if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
				return nil, unavailable("", fmt.Errorf("retrieve aws credentials: %w", err))
			}
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.PathStyle
		})
		return NewS3Backend(client), nil
	}
}

// Delete issues DeleteObject for loc.Key in loc.Bucket. S3 answers success
// for a missing key, so the outcome is OutcomeDeleted unless the service
// reports NoSuchKey or NotFound explicitly.
func (b *S3Backend) Delete(ctx context.Context, loc Location) (Outcome, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return 0, malformed(loc.Raw, "bucket and key are required")
	}
	_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return classifyS3Error(loc.Raw, err)
	}
	return OutcomeDeleted, nil
}

// authErrorCodes are S3 error codes after which no request in the run can
// succeed.
var authErrorCodes = map[string]struct{}{
	"AccessDenied":          {},
	"InvalidAccessKeyId":    {},
	"SignatureDoesNotMatch": {},
	"ExpiredToken":          {},
	"InvalidToken":          {},
	"TokenRefreshRequired":  {},
}

func classifyS3Error(raw string, err error) (Outcome, error) {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" {
			return OutcomeAbsent, nil
		}
		if _, ok := authErrorCodes[code]; ok {
			return 0, unavailable(raw, err)
		}
		return 0, deleteFailed(raw, err)
	}

	var sendErr *smithyhttp.RequestSendError
	var netErr net.Error
	if errors.As(err, &sendErr) || errors.As(err, &netErr) {
		return 0, unavailable(raw, err)
	}
	return 0, deleteFailed(raw, err)
}

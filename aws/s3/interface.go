//go:generate mockgen -package mocks -destination mocks/interface.go -source=interface.go
package s3

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
)

var ErrKeyNotFound = errors.New("key not found")

// BasicClient is the subset of bucket operations used to archive payloads.
type BasicClient interface {
	Exister
	Putter
}

type Exister interface {
	// Exists reports whether key is present in the bucket.
	Exists(ctx context.Context, key string) (bool, error)
}

type Putter interface {
	Put(ctx context.Context, key string, data []byte) (err error)
}

// ObjectAPI is the part of s3iface.S3API that basicClient calls.
type ObjectAPI interface {
	HeadObjectWithContext(ctx context.Context, input *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error)
	PutObjectWithContext(ctx context.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// Package archive persists raw source payloads before they are transformed.
// Objects are write-once: persisting the same entity, date and run twice is an error.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/stagesync/aws/s3"
	"github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/logger"
)

var ErrAlreadyExists = errors.New("archive object already exists")

// Archiver stores raw payloads.
type Archiver interface {
	// Persist writes rawBytes for entity and returns the location written to.
	Persist(ctx context.Context, entity string, date time.Time, rawBytes []byte) (string, error)
}

// ObjectName returns <Entity>_<YYYY-MM-DD>_<runID>.json.
func ObjectName(entity string, date time.Time, runID string) string {
	return fmt.Sprintf("%v_%v_%v.json", entity, date.Format(constants.DateFormat), runID)
}

// FileArchive writes payloads to files in a directory.
type FileArchive struct {
	log   logger.Logger
	dir   string
	runID string
}

func NewFileArchive(log logger.Logger, dir string, runID string) (*FileArchive, error) {
	if dir == "" {
		return nil, errors.New("archive directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create archive directory %v", dir)
	}
	return &FileArchive{log: log, dir: dir, runID: runID}, nil
}

func (a *FileArchive) Persist(ctx context.Context, entity string, date time.Time, rawBytes []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fn := filepath.Join(a.dir, ObjectName(entity, date, a.runID))
	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", errors.Wrap(ErrAlreadyExists, fn)
		}
		return "", errors.Wrapf(err, "unable to create archive file %v", fn)
	}
	if _, err = f.Write(rawBytes); err != nil {
		_ = f.Close()
		return "", errors.Wrapf(err, "unable to write archive file %v", fn)
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrapf(err, "unable to close archive file %v", fn)
	}
	a.log.Debug("archived ", len(rawBytes), " bytes to ", fn)
	return fn, nil
}

// S3Archive writes payloads to an S3 bucket under the client's prefix.
type S3Archive struct {
	log    logger.Logger
	client s3.BasicClient
	bucket s3.AwsS3Bucket
	runID  string
}

func NewS3Archive(log logger.Logger, bucket s3.AwsS3Bucket, client s3.BasicClient, runID string) *S3Archive {
	return &S3Archive{log: log, client: client, bucket: bucket, runID: runID}
}

func (a *S3Archive) Persist(ctx context.Context, entity string, date time.Time, rawBytes []byte) (string, error) {
	key := ObjectName(entity, date, a.runID)
	loc := a.bucket.String() + "/" + key
	exists, err := a.client.Exists(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "unable to check for existing archive object %v", loc)
	}
	if exists {
		return "", errors.Wrap(ErrAlreadyExists, loc)
	}
	if err = a.client.Put(ctx, key, rawBytes); err != nil {
		return "", errors.Wrapf(err, "unable to write archive object %v", loc)
	}
	a.log.Debug("archived ", len(rawBytes), " bytes to ", loc)
	return loc, nil
}

// Discard drops payloads. It is used by dry runs that have no archive configured.
type Discard struct{}

func (Discard) Persist(_ context.Context, _ string, _ time.Time, _ []byte) (string, error) {
	return "", nil
}

package actions

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/stagesync/archive"
	"github.com/relloyd/stagesync/aws/s3"
	"github.com/relloyd/stagesync/components"
	"github.com/relloyd/stagesync/config"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/entities"
	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/qgenda"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/runlog"
	"github.com/relloyd/stagesync/stats"
)

// StagingStore is the staging server: import and stage tables plus the run lock.
type StagingStore interface {
	components.StagingStore
	AcquireAppLock(ctx context.Context, resource string, timeout time.Duration) (*rdbms.AppLock, error)
}

// RunContext holds everything one run needs. Close releases it all.
type RunContext struct {
	ID         string
	Date       time.Time
	Log        logger.Logger
	Staging    StagingStore
	Production components.ProductionStore
	Sources    map[string]components.RecordQuerier // SQL sources by connection name
	QGenda     qgenda.Getter
	Archive    archive.Archiver
	RunLog     *runlog.Log
	Stats      *stats.Manager
	closers    []func() error
}

// OnClose registers fn to run when the context is closed. Closers run in reverse order.
func (rc *RunContext) OnClose(fn func() error) {
	rc.closers = append(rc.closers, fn)
}

// Close tears down the context and returns the first error seen.
func (rc *RunContext) Close() (err error) {
	for idx := len(rc.closers) - 1; idx >= 0; idx-- {
		if e := rc.closers[idx](); e != nil && err == nil {
			err = e
		}
	}
	rc.closers = nil
	return
}

// Fetcher returns the source of entity e.
func (rc *RunContext) Fetcher(e *entities.Entity) (components.Fetcher, error) {
	switch e.Source.Kind {
	case entities.SourceQGenda:
		if rc.QGenda == nil {
			return nil, fmt.Errorf("entity %v needs QGenda but it is not configured", e.Name)
		}
		return components.NewQGendaSource(&components.QGendaSourceConfig{
			Log:        rc.Log,
			Entity:     e.Name,
			Client:     rc.QGenda,
			Path:       e.Source.Path,
			Select:     e.Source.Select,
			OrderBy:    e.Source.OrderBy,
			Includes:   e.Source.Includes,
			DateFormat: e.Source.DateFormat,
		}), nil
	case entities.SourceSql:
		db, ok := rc.Sources[e.Source.Connection]
		if !ok {
			return nil, fmt.Errorf("entity %v needs connection %q which is not open", e.Name, e.Source.Connection)
		}
		return components.NewSqlSource(&components.SqlSourceConfig{
			Log:      rc.Log,
			Entity:   e.Name,
			Db:       db,
			Sqltext:  e.Source.Sqltext,
			Windowed: e.Source.Windowed,
		}), nil
	}
	return nil, fmt.Errorf("entity %v has unsupported source kind %q", e.Name, e.Source.Kind)
}

// RunContextOpener builds the context for a run of the supplied entities.
type RunContextOpener func(ctx context.Context, runID string, selected entities.Catalog) (*RunContext, error)

// DatabaseOpener opens the stores named in settings. The QGenda client is shared across runs so
// its token cache survives between serve loops.
type DatabaseOpener struct {
	Log       logger.Logger
	Settings  *config.Settings
	QGenda    qgenda.Getter
	StatsFreq int
	Now       func() time.Time
}

// NewDatabaseOpener returns an opener for settings. A QGenda client is created when the
// credentials are configured.
func NewDatabaseOpener(log logger.Logger, settings *config.Settings) *DatabaseOpener {
	o := &DatabaseOpener{Log: log, Settings: settings, StatsFreq: c.StatsCaptureFrequencySeconds, Now: time.Now}
	if creds, err := settings.QGendaCredentials(); err == nil {
		o.QGenda = qgenda.NewClient(log, settings.QGenda.BaseUrl, creds, &http.Client{Timeout: 5 * time.Minute})
	}
	return o
}

// Open connects to staging, production and every SQL source used by selected.
// On error whatever was opened is closed again.
func (o *DatabaseOpener) Open(ctx context.Context, runID string, selected entities.Catalog) (rc *RunContext, err error) {
	log := logger.WithFields(o.Log, logger.Fields{"runId": runID})
	rc = &RunContext{ID: runID, Date: o.Now(), Log: log, Sources: make(map[string]components.RecordQuerier)}
	defer func() {
		if err != nil {
			_ = rc.Close()
			rc = nil
		}
	}()
	openStore := func(name string) (*rdbms.Store, error) {
		st, err := OpenStore(ctx, log, o.Settings, name)
		if err != nil {
			return nil, err
		}
		rc.OnClose(func() error { st.Close(); return nil })
		return st, nil
	}
	staging, err := openStore(c.ConnectionNameStaging)
	if err != nil {
		return
	}
	rc.Staging = staging
	production, err := openStore(c.ConnectionNameProd)
	if err != nil {
		return
	}
	rc.Production = production
	needQGenda := false
	for _, e := range selected {
		switch e.Source.Kind {
		case entities.SourceSql:
			if _, ok := rc.Sources[e.Source.Connection]; ok {
				continue
			}
			var src *rdbms.Store
			if src, err = openStore(e.Source.Connection); err != nil {
				return
			}
			rc.Sources[e.Source.Connection] = src
		case entities.SourceQGenda:
			needQGenda = true
		}
	}
	if needQGenda {
		if o.QGenda == nil {
			_, err = o.Settings.QGendaCredentials()
			return
		}
		rc.QGenda = o.QGenda
	}
	if rc.Archive, err = o.openArchive(log, runID); err != nil {
		return
	}
	sinks := []runlog.Sink{runlog.NewLoggerSink(log)}
	if o.Settings.RunLog.Dir != "" {
		if err = os.MkdirAll(o.Settings.RunLog.Dir, 0o755); err != nil {
			err = errors.Wrap(err, "unable to create run log directory")
			return
		}
		sinks = append(sinks, runlog.NewFileSink(o.Settings.RunLog.Dir, o.Settings.RunLog.Prefix, rc.Date, o.Settings.RunLog.MaxSizeMB))
	}
	rc.RunLog = runlog.New(runID, sinks...)
	rc.OnClose(rc.RunLog.Close)
	sm := stats.NewManager(log, stats.SetStatsDumpFrequency(o.StatsFreq))
	sm.StartDumping()
	rc.Stats = sm
	rc.OnClose(func() error { sm.StopDumping(); return nil })
	return
}

func (o *DatabaseOpener) openArchive(log logger.Logger, runID string) (archive.Archiver, error) {
	a := o.Settings.Archive
	bucket, isS3, err := archiveBucket(a)
	if err != nil {
		return nil, err
	}
	switch {
	case isS3:
		if err := helper.ValidateStructIsPopulated(bucket); err != nil {
			return nil, errors.Wrap(err, "archive bucket")
		}
		client, err := s3.NewBasicClient(bucket.Name, bucket.Region, bucket.Prefix)
		if err != nil {
			return nil, err
		}
		log.Info("Archiving raw payloads to ", bucket)
		return archive.NewS3Archive(log, bucket, client, runID), nil
	case a.Dir != "":
		log.Info("Archiving raw payloads to ", a.Dir)
		return archive.NewFileArchive(log, a.Dir, runID)
	}
	log.Warn("No archive is configured so raw payloads are discarded")
	return archive.Discard{}, nil
}

// archiveBucket returns the S3 location of the archive, if it has one.
// Either archive.dir is an s3://<bucket>/<prefix> URL or archive.s3.bucket is set, optionally in the same
// URL form. An explicit archive.s3.prefix wins over a prefix in the URL.
func archiveBucket(a config.ArchiveSettings) (bucket s3.AwsS3Bucket, isS3 bool, err error) {
	var dsn string
	switch {
	case a.S3.Bucket != "":
		dsn = a.S3.Bucket
	case strings.HasPrefix(strings.ToLower(a.Dir), "s3://"):
		dsn = a.Dir
	default:
		return bucket, false, nil
	}
	bucket, err = s3.ParseDSN(dsn, a.S3.Region)
	if err != nil {
		return bucket, true, errors.Wrap(err, "archive bucket")
	}
	if a.S3.Prefix != "" {
		bucket.Prefix = strings.Trim(a.S3.Prefix, "/")
	}
	return bucket, true, nil
}

// OpenStore connects to the named connection in settings.
func OpenStore(ctx context.Context, log logger.Logger, settings *config.Settings, name string) (*rdbms.Store, error) {
	cd, err := settings.ConnectionDetails(name)
	if err != nil {
		return nil, err
	}
	conn, err := rdbms.OpenDbConnection(ctx, log, cd)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open connection %v", name)
	}
	return rdbms.NewStore(log, name, conn), nil
}

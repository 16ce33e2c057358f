package rdbms

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const (
	sqlGetAppLock = `declare @result int;
exec @result = sp_getapplock @Resource = @p1, @LockMode = 'Exclusive', @LockOwner = 'Session', @LockTimeout = @p2;
select @result as result;`
	sqlReleaseAppLock = `exec sp_releaseapplock @Resource = @p1, @LockOwner = 'Session'`
)

// ErrLockNotAcquired is returned when another session holds the lock for longer than the timeout.
var ErrLockNotAcquired = errors.New("application lock not acquired")

// AppLock is a session-owned SQL Server application lock held on a pinned connection.
type AppLock struct {
	resource string
	release  func(ctx context.Context) error
}

func (l *AppLock) Resource() string {
	return l.resource
}

// Release frees the lock and returns the pinned connection to the pool.
// It is safe to call more than once.
func (l *AppLock) Release(ctx context.Context) error {
	if l.release == nil {
		return nil
	}
	err := l.release(ctx)
	l.release = nil
	return err
}

// AcquireAppLock takes an exclusive sp_getapplock on resource, waiting up to timeout.
// The lock belongs to one pinned session so it survives across the statements of a run and is
// dropped by the server if the process dies.
func (s *Store) AcquireAppLock(ctx context.Context, resource string, timeout time.Duration) (*AppLock, error) {
	conn, err := s.conn.Conn(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "error pinning connection for application lock on %v", s.name)
	}
	var result int
	err = conn.QueryRowContext(ctx, sqlGetAppLock, resource, int64(timeout/time.Millisecond)).Scan(&result)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "error requesting application lock %q on %v", resource, s.name)
	}
	if result < 0 { // -1 timeout, -2 cancelled, -3 deadlock victim, -999 parameter or call error.
		_ = conn.Close()
		return nil, errors.Wrap(ErrLockNotAcquired, fmt.Sprintf("lock %q on %v returned status %v", resource, s.name, result))
	}
	s.log.Debug("store ", s.name, ": acquired application lock ", resource)
	return &AppLock{
		resource: resource,
		release: func(ctx context.Context) error {
			defer func() {
				_ = conn.Close()
			}()
			if _, err := conn.ExecContext(ctx, sqlReleaseAppLock, resource); err != nil {
				return errors.Wrapf(err, "error releasing application lock %q on %v", resource, s.name)
			}
			s.log.Debug("store ", s.name, ": released application lock ", resource)
			return nil
		},
	}, nil
}

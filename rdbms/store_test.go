package rdbms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/relloyd/stagesync/rdbms/shared"
	"github.com/relloyd/stagesync/stream"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	log := logrus.New()
	conn, mock, err := shared.NewMockConnectionWithMockTx(log)
	require.NoError(t, err)
	return NewStore(log, "staging", conn), mock
}

func scheduleRecs(keys ...int64) []stream.Record {
	recs := make([]stream.Record, 0, len(keys))
	for _, k := range keys {
		r := stream.NewRecord()
		r.SetData("ScheduleKey", k)
		r.SetData("Notes", "n")
		recs = append(recs, r)
	}
	return recs
}

func TestStore_Truncate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`truncate table \[import\]\.\[qdm_Schedule\]`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Truncate(context.Background(), NewSchemaTable("import", "qdm_Schedule")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BulkInsert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERTBULK")
	prep.ExpectExec().WithArgs(int64(1), "n", nil).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WithArgs(int64(2), "n", nil).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	n, err := s.BulkInsert(context.Background(), NewSchemaTable("stage", "qdm_Schedule"),
		[]string{"ScheduleKey", "Notes", "ETLCommand"}, scheduleRecs(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BulkInsertRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERTBULK")
	prep.ExpectExec().WillReturnError(errors.New("conversion failed"))
	mock.ExpectRollback()
	_, err := s.BulkInsert(context.Background(), NewSchemaTable("import", "qdm_Schedule"),
		[]string{"ScheduleKey", "Notes"}, scheduleRecs(1))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryRecords(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`select \[ScheduleKey\],\[Notes\] from \[dbo\]\.\[Schedule\] where`).
		WithArgs("2021-01-01", "2021-02-01").
		WillReturnRows(sqlmock.NewRows([]string{"ScheduleKey", "Notes"}).AddRow(int64(7), []byte("late")).AddRow(int64(8), nil))
	st := NewSchemaTable("dbo", "Schedule")
	recs, err := s.QueryRecords(context.Background(), SelectColumns(st, []string{"ScheduleKey", "Notes"}, "")+" where [ScheduleDate] >= @p1 and [ScheduleDate] < @p2", "2021-01-01", "2021-02-01")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(7), recs[0].GetData("ScheduleKey"))
	assert.Equal(t, []byte("late"), recs[0].GetData("Notes"))
	assert.Nil(t, recs[1].GetData("Notes"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTxDeleteThenInsert(t *testing.T) {
	s, mock := newMockStore(t)
	st := NewSchemaTable("dbo", "Schedule")
	mock.ExpectBegin()
	mock.ExpectExec(`delete tgt from \[dbo\]\.\[Schedule\] tgt join \(values \(@p1\),\(@p2\)\) src \(\[ScheduleKey\]\)`).
		WithArgs(int64(1), int64(2)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`insert into \[dbo\]\.\[Schedule\] \(\[ScheduleKey\],\[Notes\]\) values \(@p1,@p2\),\(@p3,@p4\)`).
		WithArgs(int64(1), "n", int64(3), "n").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	var deleted, inserted int64
	err := s.WithTx(context.Background(), func(tx shared.Transacter) error {
		var err error
		if deleted, err = s.DeleteByKeys(context.Background(), tx, st, []string{"ScheduleKey"}, scheduleRecs(1, 2)); err != nil {
			return err
		}
		inserted, err = s.InsertRows(context.Background(), tx, st, []string{"ScheduleKey", "Notes"}, scheduleRecs(1, 3))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, int64(2), inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTxRollback(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	err := s.WithTx(context.Background(), func(tx shared.Transacter) error {
		return errors.New("insert failed")
	})
	var txErr *TxError
	require.True(t, errors.As(err, &txErr))
	assert.True(t, txErr.RolledBack)

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection lost"))
	err = s.WithTx(context.Background(), func(tx shared.Transacter) error {
		return errors.New("insert failed")
	})
	require.True(t, errors.As(err, &txErr))
	assert.False(t, txErr.RolledBack)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AppLock(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("sp_getapplock").WithArgs("stagesync:Schedule", int64(1500)).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(0))
	mock.ExpectExec("sp_releaseapplock").WithArgs("stagesync:Schedule").WillReturnResult(sqlmock.NewResult(0, 0))
	lock, err := s.AcquireAppLock(context.Background(), "stagesync:Schedule", 1500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "stagesync:Schedule", lock.Resource())
	require.NoError(t, lock.Release(context.Background()))
	require.NoError(t, lock.Release(context.Background())) // second release is a no-op
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AppLockTimeout(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("sp_getapplock").WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(-1))
	_, err := s.AcquireAppLock(context.Background(), "stagesync:Schedule", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockNotAcquired))
	require.NoError(t, mock.ExpectationsWereMet())
}

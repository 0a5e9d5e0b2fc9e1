package db

import (
    "context"
    "database/sql"
    "errors"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T, retries int) (*DB, sqlmock.Sqlmock) {
    t.Helper()
    conn, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { conn.Close() })

    return &DB{DB: conn, cfg: Config{RetryAttempts: retries, RetryDelay: time.Millisecond}, health: true}, mock
}

func TestIsRetryableError(t *testing.T) {
    cases := []struct {
        err       error
        retryable bool
    }{
        {errors.New("dial tcp: connection refused"), true},
        {errors.New("read: connection reset by peer"), true},
        {errors.New("write: broken pipe"), true},
        {errors.New("context deadline exceeded: i/o timeout"), true},
        {errors.New("Error 1213: Deadlock found when trying to get lock"), true},
        {errors.New("Error 1205: Lock wait timeout; try restarting transaction"), true},
        {errors.New("syntax error near SELECT"), false},
        {nil, false},
    }
    for _, c := range cases {
        require.Equal(t, c.retryable, isRetryableError(c.err))
    }
}

func TestIsHealthyReflectsState(t *testing.T) {
    wrapped, _ := newMockDB(t, 0)
    require.True(t, wrapped.IsHealthy())

    wrapped.mu.Lock()
    wrapped.health = false
    wrapped.mu.Unlock()
    require.False(t, wrapped.IsHealthy())
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
    wrapped, mock := newMockDB(t, 0)
    mock.ExpectBegin()
    mock.ExpectExec("UPDATE caller_ids").WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    err := wrapped.Transaction(context.Background(), func(tx *sql.Tx) error {
        _, execErr := tx.Exec("UPDATE caller_ids SET active = 0 WHERE number = ?", "12125550100")
        return execErr
    })
    require.NoError(t, err)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnFnError(t *testing.T) {
    wrapped, mock := newMockDB(t, 0)
    mock.ExpectBegin()
    mock.ExpectRollback()

    err := wrapped.Transaction(context.Background(), func(tx *sql.Tx) error {
        return errors.New("syntax error near SELECT")
    })
    require.Error(t, err)
    require.Equal(t, "syntax error near SELECT", err.Error())
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRetriesRetryableErrorThenSucceeds(t *testing.T) {
    wrapped, mock := newMockDB(t, 2)

    mock.ExpectBegin()
    mock.ExpectExec("UPDATE caller_ids").WillReturnError(errors.New("connection reset by peer"))
    mock.ExpectRollback()

    mock.ExpectBegin()
    mock.ExpectExec("UPDATE caller_ids").WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    attempt := 0
    err := wrapped.Transaction(context.Background(), func(tx *sql.Tx) error {
        attempt++
        _, execErr := tx.Exec("UPDATE caller_ids SET active = 0 WHERE number = ?", "12125550100")
        return execErr
    })
    require.NoError(t, err)
    require.Equal(t, 2, attempt)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionGivesUpAfterRetriesExhausted(t *testing.T) {
    wrapped, mock := newMockDB(t, 1)

    mock.ExpectBegin()
    mock.ExpectExec("UPDATE caller_ids").WillReturnError(errors.New("connection reset by peer"))
    mock.ExpectRollback()

    mock.ExpectBegin()
    mock.ExpectExec("UPDATE caller_ids").WillReturnError(errors.New("connection reset by peer"))
    mock.ExpectRollback()

    err := wrapped.Transaction(context.Background(), func(tx *sql.Tx) error {
        _, execErr := tx.Exec("UPDATE caller_ids SET active = 0 WHERE number = ?", "12125550100")
        return execErr
    })
    require.Error(t, err)
    require.NoError(t, mock.ExpectationsWereMet())
}

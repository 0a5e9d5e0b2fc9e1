package poolstore

import (
    "context"
    "fmt"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    apperrors "github.com/hamzaKhattat/callerid-pool/pkg/errors"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })
    return NewStore(db), mock
}

func TestQueryCandidatesFiltersByAreaCode(t *testing.T) {
    store, mock := newMockStore(t)

    rows := sqlmock.NewRows([]string{"number", "area_code", "carrier", "hourly_cap", "daily_cap",
        "last_used_at", "active", "metadata", "created_at", "updated_at"}).
        AddRow("12125550100", "212", "verizon", 20, 200, nil, true, []byte("{}"), time.Now(), time.Now())

    mock.ExpectQuery(regexp.QuoteMeta("area_code = ?")).
        WithArgs("212", 50).
        WillReturnRows(rows)

    got, err := store.QueryCandidates(context.Background(), "212", 50)
    require.NoError(t, err)
    require.Len(t, got, 1)
    assert.Equal(t, "12125550100", got[0].Number)
    assert.Equal(t, "212", got[0].AreaCode)
    assert.Nil(t, got[0].LastUsedAt)
}

func TestQueryCandidatesAnyAreaCodeOmitsFilter(t *testing.T) {
    store, mock := newMockStore(t)

    rows := sqlmock.NewRows([]string{"number", "area_code", "carrier", "hourly_cap", "daily_cap",
        "last_used_at", "active", "metadata", "created_at", "updated_at"})

    mock.ExpectQuery(regexp.QuoteMeta("FROM caller_ids")).
        WithArgs(50).
        WillReturnRows(rows)

    got, err := store.QueryCandidates(context.Background(), "", 50)
    require.NoError(t, err)
    assert.Empty(t, got)
}

func TestCreateRejectsHourlyCapAboveDailyCap(t *testing.T) {
    store, _ := newMockStore(t)

    err := store.Create(context.Background(), &CallerID{
        Number: "12125550100", HourlyCap: 500, DailyCap: 100,
    })
    require.Error(t, err)
}

func TestCreateDuplicateMapsToConflict(t *testing.T) {
    store, mock := newMockStore(t)

    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO caller_ids")).
        WillReturnError(fmt.Errorf("Error 1062: Duplicate entry '12125550100' for key 'PRIMARY'"))

    err := store.Create(context.Background(), &CallerID{
        Number: "12125550100", HourlyCap: 10, DailyCap: 100,
    })
    require.Error(t, err)
    require.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestDeactivateNotFound(t *testing.T) {
    store, mock := newMockStore(t)

    mock.ExpectExec(regexp.QuoteMeta("UPDATE caller_ids SET active = 0")).
        WithArgs("99999999999").
        WillReturnResult(sqlmock.NewResult(0, 0))

    err := store.Deactivate(context.Background(), "99999999999")
    require.Error(t, err)
}

func TestUpdateLastUsedGuardsStaleWrites(t *testing.T) {
    store, mock := newMockStore(t)

    now := time.Now()
    mock.ExpectExec(regexp.QuoteMeta("WHERE number = ? AND (last_used_at IS NULL OR last_used_at < ?)")).
        WithArgs(now, "12125550100", now).
        WillReturnResult(sqlmock.NewResult(0, 1))

    err := store.UpdateLastUsed(context.Background(), "12125550100", now)
    require.NoError(t, err)
    require.NoError(t, mock.ExpectationsWereMet())
}

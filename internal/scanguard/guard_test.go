package scanguard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	g := New(db, 10*time.Second)

	mock.ExpectSetNX("scan:ticket:TKT-1", 1, 10*time.Second).SetVal(true)
	mock.ExpectSetNX("scan:ticket:TKT-1", 1, 10*time.Second).SetVal(false)

	ok, err := g.Acquire(context.Background(), "TKT-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(context.Background(), "TKT-1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	g := New(db, 0)

	mock.ExpectSetNX("scan:ticket:TKT-2", 1, 30*time.Second).SetErr(errors.New("connection refused"))

	ok, err := g.Acquire(context.Background(), "TKT-2")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	g := New(db, time.Second)

	mock.ExpectDel("scan:ticket:TKT-3").SetVal(1)
	mock.ExpectDel("scan:ticket:TKT-3").SetErr(errors.New("timeout"))

	assert.NoError(t, g.Release(context.Background(), "TKT-3"))
	assert.Error(t, g.Release(context.Background(), "TKT-3"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

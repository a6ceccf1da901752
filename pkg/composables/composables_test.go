package composables

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestUseTx_WithoutPoolOrTx(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
}

func TestInTx_WithoutPool(t *testing.T) {
	called := false
	err := InTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrNoPool)
	require.False(t, called)
}

// stubTx satisfies pgx.Tx for context plumbing; its methods are never called.
type stubTx struct{ pgx.Tx }

func TestInTxResult_ReusesBoundTx(t *testing.T) {
	outer := &stubTx{}
	ctx := WithTx(context.Background(), outer)

	got, err := InTxResult(ctx, func(txCtx context.Context) (string, error) {
		tx, err := UseTx(txCtx)
		require.NoError(t, err)
		require.Same(t, outer, tx)
		return "05", nil
	})
	require.NoError(t, err)
	require.Equal(t, "05", got)

	boom := errors.New("boom")
	_, err = InTxResult(ctx, func(context.Context) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
}

func TestInTxResult_WithoutPool(t *testing.T) {
	_, err := InTxResult(context.Background(), func(context.Context) (int, error) {
		t.Fatal("fn must not run without a pool")
		return 0, nil
	})
	require.ErrorIs(t, err, ErrNoPool)
}

func TestUseLogger_AcceptsEntryAndLogger(t *testing.T) {
	_, ok := UseLogger(context.Background())
	require.False(t, ok)

	logger := logrus.New()
	entry, ok := UseLogger(WithLogger(context.Background(), logrus.NewEntry(logger)))
	require.True(t, ok)
	require.Same(t, logger, entry.Logger)
}

func TestUseRequestID(t *testing.T) {
	_, ok := UseRequestID(context.Background())
	require.False(t, ok)

	id, ok := UseRequestID(WithRequestID(context.Background(), "req-1"))
	require.True(t, ok)
	require.Equal(t, "req-1", id)
}

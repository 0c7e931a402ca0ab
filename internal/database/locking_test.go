package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquisitionOrder(t *testing.T) {
	got := AcquisitionOrder(LockVariant, LockOrderRow, LockOrderLine)
	assert.Equal(t, []LockClass{LockOrderRow, LockOrderLine, LockVariant}, got)

	got = AcquisitionOrder(LockVariant, LockProduct)
	assert.Equal(t, []LockClass{LockProduct, LockVariant}, got)

	assert.Empty(t, AcquisitionOrder())
}

func TestLockerEnforcesClassOrder(t *testing.T) {
	ctx := context.Background()
	lk := NewLocker(false)

	require.NoError(t, lk.Acquire(ctx, nil, LockOrderRow, 1))
	require.NoError(t, lk.Acquire(ctx, nil, LockOrderLine, 10, 11))
	require.NoError(t, lk.Acquire(ctx, nil, LockVariant, 5))

	err := lk.Acquire(ctx, nil, LockOrderLine, 12)
	assert.ErrorIs(t, err, ErrLockOrderViolated)
}

func TestLockerEnforcesAscendingIDs(t *testing.T) {
	ctx := context.Background()
	lk := NewLocker(false)

	require.NoError(t, lk.Acquire(ctx, nil, LockVariant, 3, 7))

	err := lk.Acquire(ctx, nil, LockVariant, 5)
	assert.ErrorIs(t, err, ErrLockOrderViolated)

	err = lk.Acquire(ctx, nil, LockVariant, 7)
	assert.ErrorIs(t, err, ErrLockOrderViolated)
}

func TestLockerReset(t *testing.T) {
	ctx := context.Background()
	lk := NewLocker(false)

	require.NoError(t, lk.Acquire(ctx, nil, LockVariant, 9))
	lk.Reset()
	assert.NoError(t, lk.Acquire(ctx, nil, LockOrderRow, 1))
}

func TestLockerTrace(t *testing.T) {
	ctx := context.Background()

	var trace []Acquisition
	lk := NewLocker(false).WithTrace(func(a Acquisition) {
		trace = append(trace, a)
	})

	require.NoError(t, lk.Acquire(ctx, nil, LockProduct, 4))
	require.NoError(t, lk.Acquire(ctx, nil, LockVariant, 2, 8))

	assert.Equal(t, []Acquisition{
		{Class: LockProduct, ID: 4},
		{Class: LockVariant, ID: 2},
		{Class: LockVariant, ID: 8},
	}, trace)
}

func TestAdvisoryKeyDistinguishesClasses(t *testing.T) {
	assert.NotEqual(t, advisoryKey(LockOrderRow, 1), advisoryKey(LockVariant, 1))
	assert.NotEqual(t, advisoryKey(LockVariant, 1), advisoryKey(LockVariant, 2))
}

func TestLockClassString(t *testing.T) {
	assert.Equal(t, "order", LockOrderRow.String())
	assert.Equal(t, "variant", LockVariant.String())
}

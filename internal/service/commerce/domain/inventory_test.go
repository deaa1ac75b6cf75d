package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryReserveConfirmRelease(t *testing.T) {
	r := NewInventoryRecord("p1")
	require.NoError(t, r.Adjust(10))
	assert.Equal(t, 10, r.Available())

	require.NoError(t, r.Reserve(4))
	assert.Equal(t, 6, r.Available())
	assert.Equal(t, 10, r.Quantity)
	assert.Equal(t, 4, r.Reserved)

	require.NoError(t, r.Confirm(3))
	assert.Equal(t, 7, r.Quantity)
	assert.Equal(t, 1, r.Reserved)
	assert.Equal(t, 6, r.Available())

	clamped := r.Release(1)
	assert.False(t, clamped)
	assert.Equal(t, 0, r.Reserved)
	assert.Equal(t, 7, r.Available())
}

func TestInventoryReserveInsufficient(t *testing.T) {
	r := NewInventoryRecord("p1")
	require.NoError(t, r.Adjust(2))

	err := r.Reserve(3)
	require.ErrorIs(t, err, ErrInsufficientStock)
	// 失败的预占不留下任何痕迹
	assert.Equal(t, 0, r.Reserved)
	assert.Equal(t, 2, r.Available())
}

func TestInventoryReserveRejectsNonPositive(t *testing.T) {
	r := NewInventoryRecord("p1")
	require.NoError(t, r.Adjust(5))

	assert.Error(t, r.Reserve(0))
	assert.Error(t, r.Reserve(-1))
	assert.Equal(t, 0, r.Reserved)
}

func TestInventoryConfirmWithoutReservation(t *testing.T) {
	r := NewInventoryRecord("p1")
	require.NoError(t, r.Adjust(5))
	require.NoError(t, r.Reserve(1))

	err := r.Confirm(2)
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
	// 协议违规不得修改台账
	assert.Equal(t, 5, r.Quantity)
	assert.Equal(t, 1, r.Reserved)
}

func TestInventoryReleaseClampsToZero(t *testing.T) {
	r := NewInventoryRecord("p1")
	require.NoError(t, r.Adjust(5))
	require.NoError(t, r.Reserve(1))

	clamped := r.Release(3)
	assert.True(t, clamped)
	assert.Equal(t, 0, r.Reserved)
	assert.Equal(t, 5, r.Quantity)
}

func TestInventoryAdjustCannotUndercutReserved(t *testing.T) {
	r := NewInventoryRecord("p1")
	require.NoError(t, r.Adjust(10))
	require.NoError(t, r.Reserve(6))

	err := r.Adjust(-5)
	require.Error(t, err)
	assert.Equal(t, 10, r.Quantity)

	require.NoError(t, r.Adjust(-4))
	assert.Equal(t, 6, r.Quantity)
	assert.Equal(t, 0, r.Available())
}

func TestInventoryCorruptRecordDetected(t *testing.T) {
	r := &InventoryRecord{ProductID: "p1", Quantity: -1}

	err := r.Reserve(1)
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
}

func TestInventoryLowStock(t *testing.T) {
	r := NewInventoryRecord("p1")
	r.LowStockThreshold = 3
	require.NoError(t, r.Adjust(10))

	assert.False(t, r.IsLowStock())
	require.NoError(t, r.Reserve(7))
	assert.True(t, r.IsLowStock())
}

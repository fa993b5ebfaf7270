package field

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(sec int64) time.Time {
	return time.UnixMilli(sec * 1000)
}

func TestSeriesBufferCapacity(t *testing.T) {
	require.Equal(t, DefaultBufferSize, NewSeriesBuffer(math.NaN()).Capacity())
	require.Equal(t, DefaultBufferSize, NewSeriesBuffer(0).Capacity())
	require.Equal(t, 0, NewSeriesBuffer(0.5).Capacity())
	require.Equal(t, 2, NewSeriesBuffer(2.7).Capacity())
	require.Equal(t, 100, NewSeriesBuffer(100).Capacity())
	require.Equal(t, math.MaxInt32, NewSeriesBuffer(math.Inf(1)).Capacity())
}

func TestSeriesBufferZeroCapacityDropsEverySample(t *testing.T) {
	b := NewSeriesBuffer(0.5)
	for i := int64(1); i <= 3; i++ {
		require.True(t, b.Push(Sample{Time: at(i), Value: float64(i)}))
	}
	require.Equal(t, 0, b.Len())
	require.Equal(t, uint64(3), b.Evicted())
	require.Empty(t, b.Samples())
	require.Empty(t, b.Points())
}

func TestSeriesBufferEvictsOldestFirst(t *testing.T) {
	b := NewSeriesBuffer(3)
	for i := int64(1); i <= 3; i++ {
		require.False(t, b.Push(Sample{Time: at(i), Value: float64(i)}))
	}
	require.True(t, b.Push(Sample{Time: at(4), Value: 4}))
	require.True(t, b.Push(Sample{Time: at(5), Value: 5}))

	require.Equal(t, 3, b.Len())
	require.Equal(t, uint64(2), b.Evicted())
	require.Equal(t, []Sample{
		{Time: at(3), Value: 3},
		{Time: at(4), Value: 4},
		{Time: at(5), Value: 5},
	}, b.Samples())

	points := b.Points()
	require.Len(t, points, 3)
	require.Equal(t, at(3), points[0].Time)
	require.Equal(t, 5.0, points[2].Value)
}

func TestSeriesBufferKeepsArrivalOrder(t *testing.T) {
	b := NewSeriesBuffer(10)
	b.Push(Sample{Time: at(9), Value: 1})
	b.Push(Sample{Time: at(3), Value: 2})
	got := b.Samples()
	require.Equal(t, at(9), got[0].Time)
	require.Equal(t, at(3), got[1].Time)
}

func TestSeriesBufferLengthNeverExceedsBound(t *testing.T) {
	b := NewSeriesBuffer(5)
	for i := 0; i < 1000; i++ {
		b.Push(Sample{Time: at(int64(i)), Value: float64(i)})
		require.LessOrEqual(t, b.Len(), 5)
	}
	require.Equal(t, 995.0, b.Samples()[0].Value)
}

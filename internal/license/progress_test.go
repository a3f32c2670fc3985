package license

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkPerfectCountsToCompletion(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	key := issue(t, e, "device-1", "20270101", "user-1", "Ada")

	wantCounts := []int{1, 2, 3}
	wantPercents := []int{33, 67, 100}

	for i := 0; i < 3; i++ {
		res, err := e.MarkPerfect(ctx, "device-1", key, "algebra", fmt.Sprintf("attempt-%d", i))
		require.NoError(t, err)
		assert.Equal(t, wantCounts[i], res.PerfectCount)
		assert.Equal(t, wantPercents[i], res.Percent)
		assert.Equal(t, i == 2, res.Completed, "completed flips exactly at the third mark")
		assert.False(t, res.Deduped)
	}
}

func TestMarkPerfectSaturatesAtMax(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	key := issue(t, e, "device-1", "20270101", "user-1", "Ada")

	for i := 0; i < 5; i++ {
		res, err := e.MarkPerfect(ctx, "device-1", key, "algebra", fmt.Sprintf("attempt-%d", i))
		require.NoError(t, err)
		if i >= 2 {
			assert.Equal(t, MaxPerfectCount, res.PerfectCount)
			assert.Equal(t, 100, res.Percent)
			assert.True(t, res.Completed)
		}
	}
}

func TestMarkPerfectDedupesAttemptID(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	key := issue(t, e, "device-1", "20270101", "user-1", "Ada")

	first, err := e.MarkPerfect(ctx, "device-1", key, "algebra", "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.PerfectCount)
	assert.False(t, first.Deduped)

	// Client retry with the same attempt id is a no-op
	second, err := e.MarkPerfect(ctx, "device-1", key, "algebra", "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, second.PerfectCount)
	assert.True(t, second.Deduped)

	third, err := e.MarkPerfect(ctx, "device-1", key, "algebra", "attempt-2")
	require.NoError(t, err)
	assert.Equal(t, 2, third.PerfectCount)
	assert.False(t, third.Deduped)
}

func TestMarkPerfectDedupWindowIsBounded(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	key := issue(t, e, "device-1", "20270101", "user-1", "Ada")

	// Fill the ring past capacity; attempt-0 gets evicted
	for i := 0; i <= AttemptRingSize; i++ {
		_, err := e.MarkPerfect(ctx, "device-1", key, "algebra", fmt.Sprintf("attempt-%d", i))
		require.NoError(t, err)
	}

	res, err := e.MarkPerfect(ctx, "device-1", key, "algebra", "attempt-0")
	require.NoError(t, err)
	assert.False(t, res.Deduped, "evicted attempt ids fall out of the dedup window")

	res, err = e.MarkPerfect(ctx, "device-1", key, "algebra", fmt.Sprintf("attempt-%d", AttemptRingSize))
	require.NoError(t, err)
	assert.True(t, res.Deduped, "ids still in the window keep deduplicating")
}

func TestMarkPerfectWithoutAttemptIDAlwaysCounts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	key := issue(t, e, "device-1", "20270101", "user-1", "Ada")

	res, err := e.MarkPerfect(ctx, "device-1", key, "algebra", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.PerfectCount)

	res, err = e.MarkPerfect(ctx, "device-1", key, "algebra", "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.PerfectCount)
}

func TestMarkPerfectSeparatesTestModules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	key := issue(t, e, "device-1", "20270101", "user-1", "Ada")

	_, err := e.MarkPerfect(ctx, "device-1", key, "algebra", "attempt-1")
	require.NoError(t, err)

	// The same attempt id on another module is not a duplicate
	res, err := e.MarkPerfect(ctx, "device-1", key, "geometry", "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.PerfectCount)
	assert.False(t, res.Deduped)
}

func TestResetProgressClearsCounterAndWindow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	key := issue(t, e, "device-1", "20270101", "user-1", "Ada")

	for i := 0; i < 3; i++ {
		_, err := e.MarkPerfect(ctx, "device-1", key, "algebra", fmt.Sprintf("attempt-%d", i))
		require.NoError(t, err)
	}

	require.NoError(t, e.ResetProgress(ctx, "user-1", "algebra"))

	res, err := e.GetProgress(ctx, "device-1", key, []string{"algebra"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Data["algebra"].PerfectCount)
	assert.False(t, res.Data["algebra"].Completed)

	// Previously recorded attempt ids count again after a reset
	mark, err := e.MarkPerfect(ctx, "device-1", key, "algebra", "attempt-0")
	require.NoError(t, err)
	assert.Equal(t, 1, mark.PerfectCount)
	assert.False(t, mark.Deduped)
}

func TestGetProgressProjection(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	key := issue(t, e, "device-1", "20270101", "user-1", "Ada")

	_, err := e.MarkPerfect(ctx, "device-1", key, "algebra", "attempt-1")
	require.NoError(t, err)
	_, err = e.MarkPerfect(ctx, "device-1", key, "algebra", "attempt-2")
	require.NoError(t, err)

	res, err := e.GetProgress(ctx, "device-1", key, []string{"algebra", "geometry"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", res.UserID)

	algebra := res.Data["algebra"]
	require.NotNil(t, algebra)
	assert.Equal(t, 2, algebra.PerfectCount)
	assert.Equal(t, 67, algebra.Percent)
	assert.False(t, algebra.Completed)
	assert.NotNil(t, algebra.UpdatedAt)

	// Never-marked modules report a zero record
	geometry := res.Data["geometry"]
	require.NotNil(t, geometry)
	assert.Equal(t, 0, geometry.PerfectCount)
	assert.Equal(t, 0, geometry.Percent)
	assert.False(t, geometry.Completed)
	assert.Nil(t, geometry.UpdatedAt)
}

func TestPercentFor(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{0, 0},
		{1, 33},
		{2, 67},
		{3, 100},
		{4, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percentFor(tt.count))
	}
}

func TestAttemptRingEviction(t *testing.T) {
	r := newAttemptRing(nil)
	for i := 0; i < AttemptRingSize+5; i++ {
		r.add(fmt.Sprintf("a-%d", i))
	}

	assert.Len(t, r.ids, AttemptRingSize)
	assert.False(t, r.contains("a-0"))
	assert.False(t, r.contains("a-4"))
	assert.True(t, r.contains("a-5"))
	assert.True(t, r.contains(fmt.Sprintf("a-%d", AttemptRingSize+4)))
}

package chunker

import (
	"testing"

	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_SmallDocumentSingleChunk(t *testing.T) {
	spans, err := Plan(8, 10, true)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 0, End: 8}, spans[0])
}

func TestPlan_OverlapChunking(t *testing.T) {
	spans, err := Plan(47, 10, true)
	require.NoError(t, err)

	expected := []Span{
		{Start: 0, End: 10},
		{Start: 9, End: 19},
		{Start: 18, End: 28},
		{Start: 27, End: 37},
		{Start: 36, End: 47},
	}
	assert.Equal(t, expected, spans)
}

func TestPlan_OverlapInvariant(t *testing.T) {
	for _, pageCount := range []int{11, 20, 35, 47, 100, 233} {
		spans, err := Plan(pageCount, 10, true)
		require.NoError(t, err)
		require.NotEmpty(t, spans)

		// Each chunk starts on the last page of the previous one.
		for i := 1; i < len(spans); i++ {
			assert.Equal(t, spans[i-1].End-1, spans[i].Start, "pageCount=%d chunk=%d", pageCount, i)
		}
		assert.Equal(t, 0, spans[0].Start)
		assert.Equal(t, pageCount, spans[len(spans)-1].End)
	}
}

func TestPlan_NoOverlapPartitions(t *testing.T) {
	for _, pageCount := range []int{10, 25, 47, 99, 100} {
		spans, err := Plan(pageCount, 10, false)
		require.NoError(t, err)

		// No gaps, no overlaps.
		for i := 1; i < len(spans); i++ {
			assert.Equal(t, spans[i-1].End, spans[i].Start, "pageCount=%d chunk=%d", pageCount, i)
		}
		assert.Equal(t, 0, spans[0].Start)
		assert.Equal(t, pageCount, spans[len(spans)-1].End)
	}
}

func TestPlan_SmallTailMergesIntoPreviousChunk(t *testing.T) {
	// 11 pages would leave a 2-page second chunk; it merges into the first.
	spans, err := Plan(11, 10, true)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 0, End: 11}, spans[0])
}

func TestPlan_SinglePageChunksIgnoreOverlap(t *testing.T) {
	// One-page chunks leave no room to overlap; the plan degrades to
	// disjoint chunks instead of stalling.
	spans, err := Plan(5, 1, true)
	require.NoError(t, err)

	expected := []Span{
		{Start: 0, End: 1},
		{Start: 1, End: 2},
		{Start: 2, End: 3},
		{Start: 3, End: 5},
	}
	assert.Equal(t, expected, spans)
}

func TestPlan_DegenerateInputs(t *testing.T) {
	_, err := Plan(0, 10, true)
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)

	_, err = Plan(-3, 10, true)
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)

	_, err = Plan(47, 0, true)
	assert.ErrorIs(t, err, domain.ErrInvalidChunkSize)

	_, err = Plan(47, -1, false)
	assert.ErrorIs(t, err, domain.ErrInvalidChunkSize)
}

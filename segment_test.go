package transitbundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFareSegmentsCompressesRuns(t *testing.T) {
	var entries []FareEntry
	for dest := int64(2); dest <= 5; dest++ {
		entries = append(entries, FareEntry{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: dest, Amount: 500})
	}
	for dest := int64(6); dest <= 9; dest++ {
		entries = append(entries, FareEntry{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: dest, Amount: 700})
	}

	segments := BuildFareSegments(entries)
	require.Equal(t, []FareSegment{
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestFromSeq: 2, DestToSeq: 5, Amount: 500},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestFromSeq: 6, DestToSeq: 9, Amount: 700},
	}, segments)
}

func TestBuildFareSegmentsSplitsOnGap(t *testing.T) {
	segments := BuildFareSegments([]FareEntry{
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 2, Amount: 500},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 3, Amount: 500},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 5, Amount: 500},
	})
	require.Len(t, segments, 2)
	assert.Equal(t, int64(3), segments[0].DestToSeq)
	assert.Equal(t, int64(5), segments[1].DestFromSeq)
}

func TestBuildFareSegmentsDedupesToCheapest(t *testing.T) {
	segments := BuildFareSegments([]FareEntry{
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 2, Amount: 700},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 2, Amount: 500},
	})
	require.Len(t, segments, 1)
	assert.Equal(t, 500.0, segments[0].Amount)
}

func TestBuildFareSegmentsOrderIndependent(t *testing.T) {
	forward := []FareEntry{
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 2, Amount: 500},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 3, Amount: 500},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 4, Amount: 700},
		{RouteID: "12", FareProductID: "2", OriginSeq: 1, DestSeq: 2, Amount: 250},
	}
	reversed := make([]FareEntry, len(forward))
	for i, e := range forward {
		reversed[len(forward)-1-i] = e
	}
	assert.Equal(t, BuildFareSegments(forward), BuildFareSegments(reversed))
}

func TestLookupAmountRoundTrip(t *testing.T) {
	entries := []FareEntry{
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 2, Amount: 500},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 3, Amount: 500},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 4, Amount: 700},
		{RouteID: "12", FareProductID: "1", OriginSeq: 2, DestSeq: 3, Amount: 400},
		{RouteID: "13", FareProductID: "1", OriginSeq: 1, DestSeq: 2, Amount: 1000},
	}
	segments := BuildFareSegments(entries)
	require.LessOrEqual(t, len(segments), len(entries))

	for _, e := range entries {
		amount, ok := LookupAmount(segments, e.RouteID, e.FareProductID, e.OriginSeq, e.DestSeq)
		require.True(t, ok, "lookup %+v", e)
		assert.Equal(t, e.Amount, amount)
	}
}

func TestBuildFareSegmentsLargeBoundary(t *testing.T) {
	var entries []FareEntry
	for dest := int64(2); dest <= 2001; dest++ {
		amount := 500.0
		if dest > 1000 {
			amount = 700.0
		}
		entries = append(entries, FareEntry{
			RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: dest, Amount: amount,
		})
	}

	segments := BuildFareSegments(entries)
	require.Equal(t, []FareSegment{
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestFromSeq: 2, DestToSeq: 1000, Amount: 500},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestFromSeq: 1001, DestToSeq: 2001, Amount: 700},
	}, segments)

	amount, ok := LookupAmount(segments, "12", "1", 1, 1000)
	require.True(t, ok)
	assert.Equal(t, 500.0, amount)
	amount, ok = LookupAmount(segments, "12", "1", 1, 1001)
	require.True(t, ok)
	assert.Equal(t, 700.0, amount)
}

func TestLookupAmountMisses(t *testing.T) {
	segments := BuildFareSegments([]FareEntry{
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 2, Amount: 500},
		{RouteID: "12", FareProductID: "1", OriginSeq: 1, DestSeq: 3, Amount: 500},
	})

	_, ok := LookupAmount(segments, "12", "1", 1, 4)
	assert.False(t, ok, "destination past the last segment")
	_, ok = LookupAmount(segments, "12", "1", 1, 1)
	assert.False(t, ok, "destination before the first segment")
	_, ok = LookupAmount(segments, "12", "2", 1, 2)
	assert.False(t, ok, "unknown product")
	_, ok = LookupAmount(segments, "13", "1", 1, 2)
	assert.False(t, ok, "unknown route")
	_, ok = LookupAmount(nil, "12", "1", 1, 2)
	assert.False(t, ok, "empty segments")
}

func TestChooseDefaultAmounts(t *testing.T) {
	chosen := ChooseDefaultAmounts([]RuleAmount{
		{FareRuleID: "1", FareProductID: "10", Amount: 300},
		{FareRuleID: "1", FareProductID: "2", Amount: 500, IsDefault: true},
		{FareRuleID: "1", FareProductID: "1", Amount: 400, IsDefault: true},
		{FareRuleID: "2", FareProductID: "10", Amount: 900},
		{FareRuleID: "2", FareProductID: "2", Amount: 800},
	})

	require.Len(t, chosen, 2)
	assert.Equal(t, "1", chosen["1"].FareProductID, "lowest default-flagged product wins")
	assert.Equal(t, 400.0, chosen["1"].Amount)
	assert.Equal(t, "2", chosen["2"].FareProductID, "no default flag: numerically lowest product")
	assert.Equal(t, 800.0, chosen["2"].Amount)
}

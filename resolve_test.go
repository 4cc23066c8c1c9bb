package transitbundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUpstreamRouteID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"930", "930", true},
		{"0930", "930", true},
		{"000", "0", true},
		{"0", "0", true},
		{"", "", false},
		{"N930", "", false},
		{"93A", "", false},
	}
	for _, c := range cases {
		got, ok := normalizeUpstreamRouteID(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestResolveHeadwaysMatchesZeroPaddedIDs(t *testing.T) {
	res := ResolveHeadways(ResolveInput{
		RouteSources: []RouteSourceRow{
			{SourceRouteID: "0930", RouteID: "12"},
		},
		Patterns: []PatternCandidate{
			{PatternID: "101", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 5},
		},
		Frequencies: []HeadwayFrequency{
			{UpstreamRouteID: "930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00",
				HeadwaySecs: 300, SampleTripID: "T1"},
		},
	})

	require.Len(t, res.Rows, 1)
	assert.Equal(t, PatternHeadway{
		PatternID: "101", ServiceID: "WD",
		StartTime: "07:00:00", EndTime: "09:00:00",
		HeadwaySecs: 300, SampleTripID: "T1",
	}, res.Rows[0])
	assert.Equal(t, 1, res.Stats.Inserted)
	assert.Empty(t, res.Unresolved)
}

func TestResolveHeadwaysPicksLongestPattern(t *testing.T) {
	in := ResolveInput{
		RouteSources: []RouteSourceRow{{SourceRouteID: "930", RouteID: "12"}},
		Patterns: []PatternCandidate{
			{PatternID: "103", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 3},
			{PatternID: "101", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 5},
			{PatternID: "102", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 5},
			{PatternID: "104", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 0},
		},
		Frequencies: []HeadwayFrequency{
			{UpstreamRouteID: "930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00", HeadwaySecs: 300},
		},
	}

	res := ResolveHeadways(in)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "101", res.Rows[0].PatternID, "most stops wins, ties to the smaller pattern id")
}

func TestResolveHeadwaysZeroStopPatternNeverWins(t *testing.T) {
	res := ResolveHeadways(ResolveInput{
		RouteSources: []RouteSourceRow{{SourceRouteID: "930", RouteID: "12"}},
		Patterns: []PatternCandidate{
			{PatternID: "104", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 0},
		},
		Frequencies: []HeadwayFrequency{
			{UpstreamRouteID: "930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00", HeadwaySecs: 300},
		},
	})

	assert.Empty(t, res.Rows)
	assert.Equal(t, 1, res.Stats.MissingPattern)
}

func TestResolveHeadwaysAmbiguousRouteExcluded(t *testing.T) {
	res := ResolveHeadways(ResolveInput{
		RouteSources: []RouteSourceRow{
			{SourceRouteID: "930", RouteID: "12"},
			{SourceRouteID: "0930", RouteID: "13"},
		},
		Patterns: []PatternCandidate{
			{PatternID: "101", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 5},
			{PatternID: "201", RouteID: "13", RouteSeq: 1, HasRouteSeq: true, StopCount: 5},
		},
		Frequencies: []HeadwayFrequency{
			{UpstreamRouteID: "930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00", HeadwaySecs: 300},
		},
	})

	assert.Empty(t, res.Rows, "ambiguous upstream ids are never guessed at")
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, ReasonAmbiguousUpstreamRoute, res.Unresolved[0].Reason)

	// Each unresolved row lands in exactly one counter.
	assert.Equal(t, 1, res.Stats.AmbiguousRoute)
	assert.Equal(t, 0, res.Stats.MissingRoute)
	assert.Equal(t, 0, res.Stats.MissingRouteSeq)
	assert.Equal(t, 0, res.Stats.MissingPattern)
}

func TestResolveHeadwaysUnresolvedReasons(t *testing.T) {
	res := ResolveHeadways(ResolveInput{
		RouteSources: []RouteSourceRow{{SourceRouteID: "930", RouteID: "12"}},
		Patterns: []PatternCandidate{
			{PatternID: "101", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 5},
		},
		Frequencies: []HeadwayFrequency{
			// No direction at all.
			{UpstreamRouteID: "930", HasRouteSeq: false,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00", HeadwaySecs: 300},
			// Unknown upstream route.
			{UpstreamRouteID: "888", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00", HeadwaySecs: 300},
			// Non-numeric upstream route.
			{UpstreamRouteID: "N930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00", HeadwaySecs: 300},
			// Known route, no pattern for that direction.
			{UpstreamRouteID: "930", RouteSeq: 2, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00", HeadwaySecs: 300},
		},
	})

	assert.Empty(t, res.Rows)
	assert.Equal(t, ResolveStats{
		MissingRouteSeq: 1,
		MissingRoute:    2,
		MissingPattern:  1,
	}, res.Stats)

	reasons := make([]string, len(res.Unresolved))
	for i, u := range res.Unresolved {
		reasons[i] = u.Reason
	}
	assert.Equal(t, []string{
		ReasonMissingRouteSeq,
		ReasonMissingUpstreamRoute,
		ReasonMissingUpstreamRoute,
		ReasonMissingPattern,
	}, reasons)
}

func TestResolveHeadwaysAggregatesDuplicateWindows(t *testing.T) {
	res := ResolveHeadways(ResolveInput{
		RouteSources: []RouteSourceRow{{SourceRouteID: "930", RouteID: "12"}},
		Patterns: []PatternCandidate{
			{PatternID: "101", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 5},
		},
		Frequencies: []HeadwayFrequency{
			{UpstreamRouteID: "930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00",
				HeadwaySecs: 360, SampleTripID: "T2"},
			{UpstreamRouteID: "0930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00",
				HeadwaySecs: 300, SampleTripID: ""},
			{UpstreamRouteID: "930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00",
				HeadwaySecs: 420, SampleTripID: "T1"},
		},
	})

	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(300), res.Rows[0].HeadwaySecs, "smallest headway wins")
	assert.Equal(t, "T1", res.Rows[0].SampleTripID, "smallest non-empty sample trip wins")
	assert.Equal(t, 1, res.Stats.Inserted)
}

func TestResolveHeadwaysDeterministicOrder(t *testing.T) {
	in := ResolveInput{
		RouteSources: []RouteSourceRow{{SourceRouteID: "930", RouteID: "12"}},
		Patterns: []PatternCandidate{
			{PatternID: "101", RouteID: "12", RouteSeq: 1, HasRouteSeq: true, StopCount: 5},
			{PatternID: "102", RouteID: "12", RouteSeq: 2, HasRouteSeq: true, StopCount: 5},
		},
		Frequencies: []HeadwayFrequency{
			{UpstreamRouteID: "930", RouteSeq: 2, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00", HeadwaySecs: 300},
			{UpstreamRouteID: "930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "SA", StartTime: "10:00:00", EndTime: "12:00:00", HeadwaySecs: 600},
			{UpstreamRouteID: "930", RouteSeq: 1, HasRouteSeq: true,
				ServiceID: "WD", StartTime: "07:00:00", EndTime: "09:00:00", HeadwaySecs: 300},
		},
	}

	first := ResolveHeadways(in)

	reversed := in
	reversed.Frequencies = []HeadwayFrequency{
		in.Frequencies[2], in.Frequencies[1], in.Frequencies[0],
	}
	second := ResolveHeadways(reversed)

	require.Equal(t, first.Rows, second.Rows)
	require.Len(t, first.Rows, 3)
	assert.Equal(t, "101", first.Rows[0].PatternID)
	assert.Equal(t, "SA", first.Rows[0].ServiceID, "rows sorted by pattern, service, window")
}

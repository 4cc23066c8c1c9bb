package transitbundle

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// RouteSourceRow links a canonical route to the id an upstream feed used
// for it. Loaded from the map_route_source mapping table.
type RouteSourceRow struct {
	Source        string
	Mode          string
	SourceRouteID string
	SourceFile    string
	SourceRow     int64
	RouteID       string
	RouteKey      string
}

// PatternCandidate is one route pattern together with its direction within
// the route and its stop count.
type PatternCandidate struct {
	PatternID   string
	RouteID     string
	RouteSeq    int64
	HasRouteSeq bool
	StopCount   int
}

// HeadwayFrequency is one upstream frequency row, keyed by the upstream's
// own route id rather than a canonical one.
type HeadwayFrequency struct {
	UpstreamRouteID string
	RouteSeq        int64
	HasRouteSeq     bool
	ServiceID       string
	StartTime       string
	EndTime         string
	HeadwaySecs     int64
	SampleTripID    string
}

// PatternHeadway is a resolved frequency row keyed by canonical pattern id.
type PatternHeadway struct {
	PatternID    string
	ServiceID    string
	StartTime    string
	EndTime      string
	HeadwaySecs  int64
	SampleTripID string
}

// Reasons a frequency row could not be resolved, in classification
// priority order. Each row is counted under exactly one reason.
const (
	ReasonMissingRouteSeq        = "missing_route_seq"
	ReasonAmbiguousUpstreamRoute = "ambiguous_upstream_route_id"
	ReasonMissingUpstreamRoute   = "missing_upstream_route_id"
	ReasonMissingPattern         = "missing_pattern"
)

type UnresolvedFrequency struct {
	Reason string
	Freq   HeadwayFrequency
}

type ResolveStats struct {
	Inserted        int
	MissingRouteSeq int
	AmbiguousRoute  int
	MissingRoute    int
	MissingPattern  int
}

type ResolveResult struct {
	Rows       []PatternHeadway
	Unresolved []UnresolvedFrequency
	Stats      ResolveStats
}

type ResolveInput struct {
	RouteSources []RouteSourceRow
	Patterns     []PatternCandidate
	Frequencies  []HeadwayFrequency
}

// normalizeUpstreamRouteID reduces an upstream route id to its canonical
// numeric form. Upstream feeds zero-pad ids inconsistently, so "0930" and
// "930" must compare equal. Non-numeric ids cannot be matched at all.
func normalizeUpstreamRouteID(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	trimmed := strings.TrimLeft(id, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err != nil {
		return "", false
	}
	return trimmed, true
}

// ResolveHeadways joins upstream frequency rows onto canonical patterns.
//
// An upstream route id that maps to more than one canonical route is
// excluded entirely rather than guessed at. For each (route, direction)
// the pattern with the most stops wins, ties broken by the smaller
// pattern id; zero-stop patterns never win. Resolved rows that land on
// the same (pattern, service, window) keep the smallest headway and the
// lexicographically smallest non-empty sample trip id.
func ResolveHeadways(in ResolveInput) *ResolveResult {
	res := &ResolveResult{}

	routesByUpstream := make(map[string]map[string]bool)
	for _, rs := range in.RouteSources {
		norm, ok := normalizeUpstreamRouteID(rs.SourceRouteID)
		if !ok {
			continue
		}
		set := routesByUpstream[norm]
		if set == nil {
			set = make(map[string]bool)
			routesByUpstream[norm] = set
		}
		set[rs.RouteID] = true
	}

	type patternKey struct {
		routeID  string
		routeSeq int64
	}
	best := make(map[patternKey]PatternCandidate)
	for _, p := range in.Patterns {
		if !p.HasRouteSeq || p.StopCount == 0 {
			continue
		}
		key := patternKey{p.RouteID, p.RouteSeq}
		cur, ok := best[key]
		if !ok || p.StopCount > cur.StopCount ||
			(p.StopCount == cur.StopCount && p.PatternID < cur.PatternID) {
			best[key] = p
		}
	}

	type headwayKey struct {
		patternID, serviceID, startTime, endTime string
	}
	agg := make(map[headwayKey]PatternHeadway)

	for _, f := range in.Frequencies {
		if !f.HasRouteSeq {
			res.Stats.MissingRouteSeq++
			res.Unresolved = append(res.Unresolved,
				UnresolvedFrequency{Reason: ReasonMissingRouteSeq, Freq: f})
			continue
		}

		norm, ok := normalizeUpstreamRouteID(f.UpstreamRouteID)
		var routes map[string]bool
		if ok {
			routes = routesByUpstream[norm]
		}
		switch {
		case len(routes) > 1:
			res.Stats.AmbiguousRoute++
			res.Unresolved = append(res.Unresolved,
				UnresolvedFrequency{Reason: ReasonAmbiguousUpstreamRoute, Freq: f})
			continue
		case len(routes) == 0:
			res.Stats.MissingRoute++
			res.Unresolved = append(res.Unresolved,
				UnresolvedFrequency{Reason: ReasonMissingUpstreamRoute, Freq: f})
			continue
		}
		var routeID string
		for r := range routes {
			routeID = r
		}

		pattern, ok := best[patternKey{routeID, f.RouteSeq}]
		if !ok {
			res.Stats.MissingPattern++
			res.Unresolved = append(res.Unresolved,
				UnresolvedFrequency{Reason: ReasonMissingPattern, Freq: f})
			continue
		}

		key := headwayKey{pattern.PatternID, f.ServiceID, f.StartTime, f.EndTime}
		row, exists := agg[key]
		if !exists {
			agg[key] = PatternHeadway{
				PatternID:    pattern.PatternID,
				ServiceID:    f.ServiceID,
				StartTime:    f.StartTime,
				EndTime:      f.EndTime,
				HeadwaySecs:  f.HeadwaySecs,
				SampleTripID: f.SampleTripID,
			}
			continue
		}
		if f.HeadwaySecs < row.HeadwaySecs {
			row.HeadwaySecs = f.HeadwaySecs
		}
		if f.SampleTripID != "" &&
			(row.SampleTripID == "" || f.SampleTripID < row.SampleTripID) {
			row.SampleTripID = f.SampleTripID
		}
		agg[key] = row
	}

	res.Rows = make([]PatternHeadway, 0, len(agg))
	for _, row := range agg {
		res.Rows = append(res.Rows, row)
	}
	sort.Slice(res.Rows, func(a, b int) bool {
		ra, rb := res.Rows[a], res.Rows[b]
		if ra.PatternID != rb.PatternID {
			return ra.PatternID < rb.PatternID
		}
		if ra.ServiceID != rb.ServiceID {
			return ra.ServiceID < rb.ServiceID
		}
		if ra.StartTime != rb.StartTime {
			return ra.StartTime < rb.StartTime
		}
		return ra.EndTime < rb.EndTime
	})
	res.Stats.Inserted = len(res.Rows)

	slog.Info(fmt.Sprintf(
		"Resolved %d headway row(s) (%d missing route_seq, %d ambiguous route, %d missing route, %d missing pattern)",
		res.Stats.Inserted, res.Stats.MissingRouteSeq, res.Stats.AmbiguousRoute,
		res.Stats.MissingRoute, res.Stats.MissingPattern))
	return res
}

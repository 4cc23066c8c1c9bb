package transitbundle

import (
	"sort"
	"strconv"
)

// idLess orders ids numerically when both parse as integers, falling back
// to string order. Canonical ids are numeric; the fallback keeps the
// choice deterministic for anything else.
func idLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// FareEntry is one per-destination fare: riding route RouteID from stop
// OriginSeq to stop DestSeq with product FareProductID costs Amount.
type FareEntry struct {
	RouteID       string
	FareProductID string
	OriginSeq     int64
	DestSeq       int64
	Amount        float64
}

// FareSegment is a run of consecutive destination stops that share one
// amount. Segments are what the bundle ships instead of per-destination
// rows; a lookup finds the segment whose [DestFromSeq, DestToSeq] range
// covers the destination.
type FareSegment struct {
	RouteID       string
	FareProductID string
	OriginSeq     int64
	DestFromSeq   int64
	DestToSeq     int64
	Amount        float64
}

// RuleAmount is one fare_amounts row joined with its rule, used to pick a
// representative amount per rule.
type RuleAmount struct {
	FareRuleID    string
	FareProductID string
	Amount        float64
	IsDefault     bool
}

// ChooseDefaultAmounts picks one amount per fare rule: the default-flagged
// product with the smallest id, falling back to the smallest product id
// overall when no row is flagged.
func ChooseDefaultAmounts(amounts []RuleAmount) map[string]RuleAmount {
	chosen := make(map[string]RuleAmount)
	for _, a := range amounts {
		cur, ok := chosen[a.FareRuleID]
		if !ok {
			chosen[a.FareRuleID] = a
			continue
		}
		switch {
		case a.IsDefault && !cur.IsDefault:
			chosen[a.FareRuleID] = a
		case a.IsDefault == cur.IsDefault && idLess(a.FareProductID, cur.FareProductID):
			chosen[a.FareRuleID] = a
		}
	}
	return chosen
}

// BuildFareSegments compresses per-destination fares into segments.
// Duplicate (route, product, origin, destination) entries collapse to the
// cheapest amount before compression, so the result is deterministic
// regardless of input order. A new segment starts whenever the destination
// sequence jumps or the amount changes.
func BuildFareSegments(entries []FareEntry) []FareSegment {
	type cellKey struct {
		routeID, productID string
		originSeq, destSeq int64
	}
	cheapest := make(map[cellKey]float64, len(entries))
	for _, e := range entries {
		key := cellKey{e.RouteID, e.FareProductID, e.OriginSeq, e.DestSeq}
		if cur, ok := cheapest[key]; !ok || e.Amount < cur {
			cheapest[key] = e.Amount
		}
	}

	deduped := make([]FareEntry, 0, len(cheapest))
	for key, amount := range cheapest {
		deduped = append(deduped, FareEntry{
			RouteID:       key.routeID,
			FareProductID: key.productID,
			OriginSeq:     key.originSeq,
			DestSeq:       key.destSeq,
			Amount:        amount,
		})
	}
	sort.Slice(deduped, func(a, b int) bool {
		ea, eb := deduped[a], deduped[b]
		if ea.RouteID != eb.RouteID {
			return ea.RouteID < eb.RouteID
		}
		if ea.FareProductID != eb.FareProductID {
			return ea.FareProductID < eb.FareProductID
		}
		if ea.OriginSeq != eb.OriginSeq {
			return ea.OriginSeq < eb.OriginSeq
		}
		return ea.DestSeq < eb.DestSeq
	})

	var segments []FareSegment
	var cur *FareSegment
	for _, e := range deduped {
		if cur != nil &&
			cur.RouteID == e.RouteID &&
			cur.FareProductID == e.FareProductID &&
			cur.OriginSeq == e.OriginSeq &&
			e.DestSeq == cur.DestToSeq+1 &&
			e.Amount == cur.Amount {
			cur.DestToSeq = e.DestSeq
			continue
		}
		segments = append(segments, FareSegment{
			RouteID:       e.RouteID,
			FareProductID: e.FareProductID,
			OriginSeq:     e.OriginSeq,
			DestFromSeq:   e.DestSeq,
			DestToSeq:     e.DestSeq,
			Amount:        e.Amount,
		})
		cur = &segments[len(segments)-1]
	}
	return segments
}

// LookupAmount finds the fare for one (route, product, origin, destination)
// in a segment slice as produced by BuildFareSegments. It binary-searches
// for the segment with the greatest DestFromSeq at or below the destination
// and then checks containment.
func LookupAmount(segments []FareSegment, routeID, productID string, originSeq, destSeq int64) (float64, bool) {
	lo := sort.Search(len(segments), func(i int) bool {
		s := segments[i]
		if s.RouteID != routeID {
			return s.RouteID >= routeID
		}
		if s.FareProductID != productID {
			return s.FareProductID >= productID
		}
		if s.OriginSeq != originSeq {
			return s.OriginSeq >= originSeq
		}
		return s.DestFromSeq > destSeq
	})
	if lo == 0 {
		return 0, false
	}
	s := segments[lo-1]
	if s.RouteID != routeID || s.FareProductID != productID || s.OriginSeq != originSeq {
		return 0, false
	}
	if destSeq < s.DestFromSeq || destSeq > s.DestToSeq {
		return 0, false
	}
	return s.Amount, true
}

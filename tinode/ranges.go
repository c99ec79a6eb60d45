package tinode

import "sort"

// MsgRange is a range of message sequence IDs, inclusive-exclusive [Low, Hi).
// A missing Hi means a single ID, i.e. [Low, Low+1).
type MsgRange struct {
	Low int `json:"low,omitempty"`
	Hi  int `json:"hi,omitempty"`
}

// Upper returns the exclusive upper bound of the range.
func (r MsgRange) Upper() int {
	if r.Hi <= 0 {
		return r.Low + 1
	}
	return r.Hi
}

// Contains checks if the given seq ID falls within the range.
func (r MsgRange) Contains(seq int) bool {
	return r.Low <= seq && seq < r.Upper()
}

// SortRanges sorts ranges in ascending order by Low, descending by Hi, the
// order expected by CollapseRanges.
func SortRanges(ranges []MsgRange) {
	sort.SliceStable(ranges, func(i, j int) bool {
		if ranges[i].Low != ranges[j].Low {
			return ranges[i].Low < ranges[j].Low
		}
		return ranges[i].Upper() > ranges[j].Upper()
	})
}

// ListToRanges converts a list of IDs to a minimal list of ranges. The input
// does not have to be sorted.
func ListToRanges(list []int) []MsgRange {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int, len(list))
	copy(ids, list)
	sort.Ints(ids)

	var res []MsgRange
	first, last := ids[0], ids[0]
	for _, cur := range ids[1:] {
		if cur == last {
			continue
		}
		if cur > last+1 {
			res = append(res, MsgRange{Low: first, Hi: last + 1})
			first = cur
		}
		last = cur
	}
	return append(res, MsgRange{Low: first, Hi: last + 1})
}

// RangesToList flattens ranges back into the list of IDs they cover.
// Precondition: ranges are sorted and non-overlapping.
func RangesToList(ranges []MsgRange) []int {
	var list []int
	for _, r := range ranges {
		for seq := r.Low; seq < r.Upper(); seq++ {
			list = append(list, seq)
		}
	}
	return list
}

// CollapseRanges merges overlapping and contained ranges into the maximal
// non-overlapping form. Precondition: input is sorted by Low ascending, Hi
// descending (see SortRanges); malformed input produces incorrect output.
func CollapseRanges(ranges []MsgRange) []MsgRange {
	if len(ranges) == 0 {
		return ranges
	}

	res := []MsgRange{{Low: ranges[0].Low, Hi: ranges[0].Upper()}}
	for _, r := range ranges[1:] {
		last := &res[len(res)-1]
		if r.Low > last.Hi {
			// New range.
			res = append(res, MsgRange{Low: r.Low, Hi: r.Upper()})
		} else if r.Upper() > last.Hi {
			// Extend the current range.
			last.Hi = r.Upper()
		}
		// Otherwise the range is fully contained in the current one.
	}
	return res
}

// RangeGaps returns the empty spaces between consecutive ranges.
// Precondition: ranges are sorted and non-overlapping.
func RangeGaps(ranges []MsgRange) []MsgRange {
	var gaps []MsgRange
	for i := 1; i < len(ranges); i++ {
		prev := ranges[i-1].Upper()
		if ranges[i].Low > prev {
			gaps = append(gaps, MsgRange{Low: prev, Hi: ranges[i].Low})
		}
	}
	return gaps
}

// ClipRange subtracts clip from src. The result contains zero, one or two
// ranges: empty when src is fully covered by clip, two when clip cuts a hole
// strictly inside src.
func ClipRange(src, clip MsgRange) []MsgRange {
	sLow, sHi := src.Low, src.Upper()
	cLow, cHi := clip.Low, clip.Upper()

	if cLow <= sLow && cHi >= sHi {
		// Fully clipped.
		return nil
	}
	if cHi <= sLow || cLow >= sHi {
		// No intersection.
		return []MsgRange{{Low: sLow, Hi: sHi}}
	}

	var res []MsgRange
	if sLow < cLow {
		res = append(res, MsgRange{Low: sLow, Hi: cLow})
	}
	if cHi < sHi {
		res = append(res, MsgRange{Low: cHi, Hi: sHi})
	}
	return res
}

// EnclosingRange returns the bounding range of a sorted non-overlapping list.
func EnclosingRange(ranges []MsgRange) *MsgRange {
	if len(ranges) == 0 {
		return nil
	}
	return &MsgRange{Low: ranges[0].Low, Hi: ranges[len(ranges)-1].Upper()}
}

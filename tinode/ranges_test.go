package tinode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestListToRanges(t *testing.T) {
	cases := []struct {
		list []int
		want []MsgRange
	}{
		{nil, nil},
		{[]int{5}, []MsgRange{{Low: 5, Hi: 6}}},
		{[]int{1, 2, 3}, []MsgRange{{Low: 1, Hi: 4}}},
		{[]int{3, 1, 2}, []MsgRange{{Low: 1, Hi: 4}}},
		{[]int{1, 1, 2, 2}, []MsgRange{{Low: 1, Hi: 3}}},
		{[]int{1, 2, 3, 5, 7, 8}, []MsgRange{{Low: 1, Hi: 4}, {Low: 5, Hi: 6}, {Low: 7, Hi: 9}}},
	}
	for i, tc := range cases {
		if diff := cmp.Diff(tc.want, ListToRanges(tc.list)); diff != "" {
			t.Errorf("%d: unexpected ranges (-want +got):\n%s", i, diff)
		}
	}
}

func TestRangesToList(t *testing.T) {
	ranges := []MsgRange{{Low: 1, Hi: 4}, {Low: 7}, {Low: 9, Hi: 11}}
	want := []int{1, 2, 3, 7, 9, 10}
	if diff := cmp.Diff(want, RangesToList(ranges)); diff != "" {
		t.Errorf("unexpected list (-want +got):\n%s", diff)
	}
}

func TestCollapseRanges(t *testing.T) {
	ranges := []MsgRange{{Low: 10}, {Low: 2, Hi: 3}, {Low: 1, Hi: 5}, {Low: 4, Hi: 8}}
	SortRanges(ranges)
	want := []MsgRange{{Low: 1, Hi: 8}, {Low: 10, Hi: 11}}
	if diff := cmp.Diff(want, CollapseRanges(ranges)); diff != "" {
		t.Errorf("unexpected ranges (-want +got):\n%s", diff)
	}
}

func TestRangeGaps(t *testing.T) {
	ranges := []MsgRange{{Low: 1, Hi: 4}, {Low: 6, Hi: 8}, {Low: 9}}
	want := []MsgRange{{Low: 4, Hi: 6}, {Low: 8, Hi: 9}}
	if diff := cmp.Diff(want, RangeGaps(ranges)); diff != "" {
		t.Errorf("unexpected gaps (-want +got):\n%s", diff)
	}

	if gaps := RangeGaps([]MsgRange{{Low: 1, Hi: 5}, {Low: 5, Hi: 7}}); gaps != nil {
		t.Errorf("adjacent ranges produced gaps %v", gaps)
	}
}

func TestClipRange(t *testing.T) {
	cases := []struct {
		src, clip MsgRange
		want      []MsgRange
	}{
		// Fully covered.
		{MsgRange{Low: 2, Hi: 5}, MsgRange{Low: 1, Hi: 10}, nil},
		// No intersection.
		{MsgRange{Low: 2, Hi: 5}, MsgRange{Low: 5, Hi: 10}, []MsgRange{{Low: 2, Hi: 5}}},
		// Clip the head.
		{MsgRange{Low: 2, Hi: 8}, MsgRange{Low: 1, Hi: 5}, []MsgRange{{Low: 5, Hi: 8}}},
		// Clip the tail.
		{MsgRange{Low: 2, Hi: 8}, MsgRange{Low: 6, Hi: 12}, []MsgRange{{Low: 2, Hi: 6}}},
		// Hole in the middle.
		{MsgRange{Low: 2, Hi: 10}, MsgRange{Low: 4, Hi: 6}, []MsgRange{{Low: 2, Hi: 4}, {Low: 6, Hi: 10}}},
		// Single-ID clip.
		{MsgRange{Low: 2, Hi: 5}, MsgRange{Low: 3}, []MsgRange{{Low: 2, Hi: 3}, {Low: 4, Hi: 5}}},
	}
	for i, tc := range cases {
		if diff := cmp.Diff(tc.want, ClipRange(tc.src, tc.clip)); diff != "" {
			t.Errorf("%d: unexpected result (-want +got):\n%s", i, diff)
		}
	}
}

func TestEnclosingRange(t *testing.T) {
	if r := EnclosingRange(nil); r != nil {
		t.Errorf("expected nil, got %v", r)
	}
	r := EnclosingRange([]MsgRange{{Low: 2, Hi: 4}, {Low: 7}})
	if r == nil || r.Low != 2 || r.Hi != 8 {
		t.Errorf("unexpected enclosing range %v", r)
	}
}

func TestRangeContains(t *testing.T) {
	r := MsgRange{Low: 3, Hi: 6}
	for _, seq := range []int{3, 4, 5} {
		if !r.Contains(seq) {
			t.Errorf("%v should contain %d", r, seq)
		}
	}
	for _, seq := range []int{2, 6} {
		if r.Contains(seq) {
			t.Errorf("%v should not contain %d", r, seq)
		}
	}

	single := MsgRange{Low: 3}
	if !single.Contains(3) || single.Contains(4) {
		t.Errorf("single-ID range misbehaves: %v", single)
	}
	if single.Upper() != 4 {
		t.Errorf("unexpected upper bound %d", single.Upper())
	}
}

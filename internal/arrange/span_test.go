package arrange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpanIntersects(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{
			name: "disjoint",
			a:    Span{0, 4},
			b:    Span{8, 12},
			want: false,
		},
		{
			name: "touching endpoints do not intersect",
			a:    Span{0, 4},
			b:    Span{4, 8},
			want: false,
		},
		{
			name: "partial overlap",
			a:    Span{0, 4},
			b:    Span{2, 8},
			want: true,
		},
		{
			name: "containment",
			a:    Span{0, 16},
			b:    Span{4, 8},
			want: true,
		},
		{
			name: "identical",
			a:    Span{4, 8},
			b:    Span{4, 8},
			want: true,
		},
		{
			name: "within epsilon of touching",
			a:    Span{0, 4.0000001},
			b:    Span{4, 8},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Intersects(tt.b))
			assert.Equal(t, tt.want, tt.b.Intersects(tt.a), "intersection must be symmetric")
		})
	}
}

func TestSpanEmpty(t *testing.T) {
	assert.True(t, Span{4, 4}.Empty())
	assert.True(t, Span{4, 4 + Eps/2}.Empty())
	assert.False(t, Span{4, 5}.Empty())
}

func TestClassify(t *testing.T) {
	dest := Span{Start: 8, End: 16}

	tests := []struct {
		name string
		clip Span
		want Overlap
	}{
		{"fully before", Span{0, 4}, OverlapNone},
		{"touching at start", Span{0, 8}, OverlapNone},
		{"touching at end", Span{16, 20}, OverlapNone},
		{"fully after", Span{20, 24}, OverlapNone},
		{"inside destination", Span{10, 14}, OverlapContains},
		{"exactly destination", Span{8, 16}, OverlapContains},
		{"aligned start shorter", Span{8, 12}, OverlapContains},
		{"aligned end shorter", Span{12, 16}, OverlapContains},
		{"tail overlaps destination", Span{4, 12}, OverlapBefore},
		{"head overlaps destination", Span{12, 20}, OverlapAfter},
		{"straddles destination", Span{4, 20}, OverlapStraddles},
		{"tail reaches destination end", Span{4, 16}, OverlapBefore},
		{"head starts at destination start", Span{8, 20}, OverlapAfter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(dest, tt.clip), "Classify(%v, %v)", dest, tt.clip)
		})
	}
}

func TestOverlapString(t *testing.T) {
	assert.Equal(t, "straddles", OverlapStraddles.String())
	assert.Equal(t, "none", OverlapNone.String())
}

package post

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePage(t *testing.T) {
	assert.Equal(t, 1, NormalizePage(0))
	assert.Equal(t, 1, NormalizePage(-3))
	assert.Equal(t, 4, NormalizePage(4))
	assert.Equal(t, MaxPage, NormalizePage(math.MaxInt))
	assert.Equal(t, MaxPage, NormalizePage(1844674407370955163))
}

func TestHugePageNumberKeepsOffsetInRange(t *testing.T) {
	p := &Page{Number: NormalizePage(math.MaxInt), PerPage: PageSize, Total: 3}

	assert.GreaterOrEqual(t, p.Offset(), 0)
	assert.LessOrEqual(t, p.Offset(), math.MaxInt32)
	assert.Positive(t, p.NextNum())
	assert.False(t, p.HasNext())
}

func TestPageArithmetic(t *testing.T) {
	p := &Page{Number: 3, PerPage: PageSize, Total: 12}

	assert.Equal(t, 10, p.Offset())
	assert.Equal(t, 3, p.Pages())
	assert.True(t, p.HasPrev())
	assert.False(t, p.HasNext())
	assert.Equal(t, 2, p.PrevNum())
}

func TestPagesOfEmptyListing(t *testing.T) {
	p := &Page{Number: 1, PerPage: PageSize}

	assert.Equal(t, 1, p.Pages())
	assert.False(t, p.HasPrev())
	assert.False(t, p.HasNext())
	assert.Equal(t, []int{1}, p.IterPages())
}

func TestIterPages(t *testing.T) {
	tests := []struct {
		name   string
		number int
		total  int
		want   []int
	}{
		{name: "few pages", number: 1, total: 15, want: []int{1, 2, 3}},
		{name: "middle of many", number: 6, total: 50, want: []int{1, 0, 5, 6, 7, 0, 10}},
		{name: "start of many", number: 1, total: 50, want: []int{1, 2, 0, 10}},
		{name: "end of many", number: 10, total: 50, want: []int{1, 0, 9, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Page{Number: tt.number, PerPage: PageSize, Total: tt.total}
			assert.Equal(t, tt.want, p.IterPages())
		})
	}
}

package post

import "math"

// PageSize is the number of posts shown per listing page
const PageSize = 5

// MaxPage bounds requested page numbers so offsets fit a Postgres integer.
// Anything past it is an empty page anyway.
const MaxPage = math.MaxInt32 / PageSize

// Page is one window of a newest-first listing
type Page struct {
	Items   []*Post
	Number  int
	PerPage int
	Total   int
}

// NormalizePage maps a missing or nonsensical page number to the first page
// and caps huge ones at MaxPage
func NormalizePage(n int) int {
	if n < 1 {
		return 1
	}
	return min(n, MaxPage)
}

// Offset is the number of rows skipped before this page
func (p *Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// Pages is the total page count; an empty listing still has one page
func (p *Page) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

func (p *Page) HasPrev() bool { return p.Number > 1 }
func (p *Page) HasNext() bool { return p.Number < p.Pages() }
func (p *Page) PrevNum() int  { return p.Number - 1 }
func (p *Page) NextNum() int  { return p.Number + 1 }

// IterPages lists page numbers for a pager: the first and last page, one page
// before the current one and two after it. A zero marks a gap.
func (p *Page) IterPages() []int {
	const (
		leftEdge     = 1
		rightEdge    = 1
		leftCurrent  = 1
		rightCurrent = 2
	)

	pages := p.Pages()
	var out []int
	last := 0
	for num := 1; num <= pages; num++ {
		if num <= leftEdge ||
			(num > p.Number-leftCurrent-1 && num < p.Number+rightCurrent) ||
			num > pages-rightEdge {
			if last+1 != num {
				out = append(out, 0)
			}
			out = append(out, num)
			last = num
		}
	}
	return out
}

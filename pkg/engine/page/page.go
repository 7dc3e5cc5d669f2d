// Package page slices ordered result sets into stable pages.
package page

import (
	"errors"
	"sort"
)

// DefaultSize is used when a request leaves the page size at zero.
const DefaultSize = 20

// ErrInvalidRequest is returned for a negative page number or size.
var ErrInvalidRequest = errors.New("invalid page request")

// Request selects a zero-based page.
type Request struct {
	Number int `json:"number"`
	Size   int `json:"size"`
}

// Page is one slice of an ordered sequence.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	Number     int `json:"number"`
	Size       int `json:"size"`
}

// TotalPages returns the number of pages needed for TotalCount.
func (p Page[T]) TotalPages() int {
	if p.Size <= 0 || p.TotalCount == 0 {
		return 0
	}
	return (p.TotalCount + p.Size - 1) / p.Size
}

// Normalize validates r and applies the default size.
func (r Request) Normalize() (Request, error) {
	if r.Number < 0 || r.Size < 0 {
		return Request{}, ErrInvalidRequest
	}
	if r.Size == 0 {
		r.Size = DefaultSize
	}
	return r, nil
}

// Paginate returns the requested page of seq. A page past the end has no
// items but still reports the full count.
func Paginate[T any](seq []T, req Request) (Page[T], error) {
	req, err := req.Normalize()
	if err != nil {
		return Page[T]{}, err
	}

	p := Page[T]{
		Items:      []T{},
		TotalCount: len(seq),
		Number:     req.Number,
		Size:       req.Size,
	}

	// Compare against the remaining length to avoid overflowing Number*Size.
	if req.Number > (len(seq)-1)/req.Size || len(seq) == 0 {
		return p, nil
	}
	start := req.Number * req.Size
	end := start + req.Size
	if end > len(seq) {
		end = len(seq)
	}
	p.Items = append(p.Items, seq[start:end]...)
	return p, nil
}

// SortByKey orders seq in place by ascending key. Equal keys keep their
// relative order.
func SortByKey[T any](seq []T, key func(T) string) {
	sort.SliceStable(seq, func(i, j int) bool { return key(seq[i]) < key(seq[j]) })
}

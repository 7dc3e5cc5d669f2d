package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestPaginate_ConcatenationReproducesSequence(t *testing.T) {
	for _, n := range []int{0, 1, 7, 20, 21} {
		for _, size := range []int{1, 3, 7, 20, 50} {
			items := seq(n)
			var joined []int
			for number := 0; ; number++ {
				p, err := Paginate(items, Request{Number: number, Size: size})
				require.NoError(t, err)
				assert.Equal(t, n, p.TotalCount)
				assert.LessOrEqual(t, len(p.Items), size)
				if len(p.Items) == 0 {
					break
				}
				joined = append(joined, p.Items...)
			}
			if n == 0 {
				assert.Empty(t, joined)
			} else {
				assert.Equal(t, items, joined, "n=%d size=%d", n, size)
			}
		}
	}
}

func TestPaginate_PastLastPage(t *testing.T) {
	p, err := Paginate(seq(5), Request{Number: 3, Size: 2})
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.NotNil(t, p.Items)
	assert.Equal(t, 5, p.TotalCount)
	assert.Equal(t, 3, p.TotalPages())
}

func TestPaginate_DefaultsAndValidation(t *testing.T) {
	p, err := Paginate(seq(30), Request{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, p.Size)
	assert.Len(t, p.Items, DefaultSize)

	_, err = Paginate(seq(3), Request{Number: -1, Size: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Paginate(seq(3), Request{Number: 0, Size: -5})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSortByKey(t *testing.T) {
	type kv struct{ k, v string }
	items := []kv{{"b", "1"}, {"a", "2"}, {"b", "0"}, {"c", "3"}}
	SortByKey(items, func(x kv) string { return x.k })
	assert.Equal(t, []kv{{"a", "2"}, {"b", "1"}, {"b", "0"}, {"c", "3"}}, items)
}

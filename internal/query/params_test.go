package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsPlaceholdersMatchPositions(t *testing.T) {
	p := NewParams()
	for i := 1; i <= 5; i++ {
		ph := p.Add(i * 10)
		assert.Equal(t, fmt.Sprintf("$%d", i), ph)
	}
	require.Len(t, p.Values(), 5)
	for i, v := range p.Values() {
		assert.Equal(t, (i+1)*10, v)
	}
}

func TestParamsNoDeduplication(t *testing.T) {
	p := NewParams()
	first := p.Add("same")
	second := p.Add("same")
	assert.Equal(t, "$1", first)
	assert.Equal(t, "$2", second)
	assert.Equal(t, []any{"same", "same"}, p.Values())
}

func TestParamsPaginationBoundary(t *testing.T) {
	p := NewParams()
	p.Add("a")
	p.Add("b")
	p.MarkPaginationStart()
	p.Add(25) // limit
	p.Add(0)  // offset

	assert.Equal(t, []any{"a", "b", 25, 0}, p.Values())
	assert.Equal(t, []any{"a", "b"}, p.ValuesExcludingPagination())
}

func TestParamsNoBoundaryMarked(t *testing.T) {
	p := NewParams()
	p.Add("a")
	p.Add("b")
	assert.Equal(t, p.Values(), p.ValuesExcludingPagination())
}

func TestParamsBoundaryAtStart(t *testing.T) {
	p := NewParams()
	p.MarkPaginationStart()
	p.Add(10)
	assert.Empty(t, p.ValuesExcludingPagination())
	assert.Len(t, p.Values(), 1)
}

func TestParamsCloneIsIndependent(t *testing.T) {
	base := NewParams()
	base.Add("shared")

	clone := base.Clone()
	ph := clone.Add("clone-only")
	assert.Equal(t, "$2", ph)

	// The original must not see the clone's parameter, and vice versa.
	assert.Equal(t, []any{"shared"}, base.Values())
	assert.Equal(t, []any{"shared", "clone-only"}, clone.Values())

	base.Add("base-only")
	assert.Equal(t, []any{"shared", "clone-only"}, clone.Values())
}

func TestParamsClonePreservesBoundary(t *testing.T) {
	base := NewParams()
	base.Add("filter")
	base.MarkPaginationStart()
	base.Add(50)

	clone := base.Clone()
	assert.Equal(t, []any{"filter"}, clone.ValuesExcludingPagination())
	assert.Equal(t, []any{"filter", 50}, clone.Values())
}

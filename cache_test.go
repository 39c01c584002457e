package relic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_IDCache_Construct(t *testing.T) {
	t.Run("same key yields the same live instance", func(t *testing.T) {
		assert := assert.New(t)
		taxon := NewType("taxon")

		a := taxon.cache.construct(taxon, 3, nil)
		b := taxon.cache.construct(taxon, 3, nil)
		assert.Same(a, b)

		c := taxon.cache.construct(taxon, 4, nil)
		assert.NotSame(a, c)
	})

	t.Run("new instances shadow their own key", func(t *testing.T) {
		assert := assert.New(t)
		taxon := NewType("taxon")

		r := taxon.cache.construct(taxon, 3, nil)
		assert.EqualValues(3, r.id)
		assert.Equal(map[string]any{"id": int64(3)}, r.shadow)
	})

	t.Run("attrs merge into the live instance", func(t *testing.T) {
		assert := assert.New(t)
		taxon := NewType("taxon")

		a := taxon.cache.construct(taxon, 3, Row{"name": "Talpa"})
		b := taxon.cache.construct(taxon, 3, Row{"extinct": int64(0)})

		require.Same(t, a, b)
		assert.Equal("Talpa", a.shadow["name"])
		assert.Equal(int64(0), a.shadow["extinct"])
	})

	t.Run("later attrs overwrite earlier ones", func(t *testing.T) {
		assert := assert.New(t)
		taxon := NewType("taxon")

		a := taxon.cache.construct(taxon, 3, Row{"name": "Talpa"})
		taxon.cache.construct(taxon, 3, Row{"name": "Mogera"})
		assert.Equal("Mogera", a.shadow["name"])
	})
}

func Test_IDCache_Drop(t *testing.T) {
	assert := assert.New(t)
	taxon := NewType("taxon")

	r := taxon.cache.construct(taxon, 3, nil)

	// a drop for a key whose instance is still live must not evict it; the
	// runtime can deliver a cleanup for a dead instance after a fresh one
	// was cached under the same key
	taxon.cache.drop(3)
	assert.Same(r, taxon.cache.construct(taxon, 3, nil))
}

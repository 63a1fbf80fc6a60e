package transformer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainSet(t *testing.T) {
	t.Parallel()

	d := NewDomainSet()
	d.Add("cnaes", 6201501)
	d.Add("cnaes", 6201501)
	d.Add("cnaes", 1<<40)

	assert.False(t, d.Loaded("cnaes"), "adding codes does not mark the table loaded")
	d.MarkLoaded("cnaes")
	d.MarkLoaded("paises")

	assert.True(t, d.Loaded("cnaes"))
	assert.True(t, d.Has("cnaes", 6201501))
	assert.True(t, d.Has("cnaes", 1<<40))
	assert.False(t, d.Has("cnaes", 6201502))
	assert.Equal(t, 2, d.Size("cnaes"))

	assert.True(t, d.Loaded("paises"), "an empty reference table is still loaded")
	assert.False(t, d.Has("paises", 105))
	assert.Equal(t, 0, d.Size("paises"))
	assert.False(t, d.Loaded("municipios"))
}

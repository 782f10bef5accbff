package idgen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opscascade/cascade/optree/idgen"
)

func Test_New_ProducesUniqueIDs(t *testing.T) {
	t.Parallel()

	src := idgen.New()
	a, b := src.NewID(), src.NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func Test_Sequential(t *testing.T) {
	t.Parallel()

	src := idgen.NewSequential()
	assert.Equal(t, "0", src.NewID())
	assert.Equal(t, "1", src.NewID())
	assert.Equal(t, "2", src.NewID())
}

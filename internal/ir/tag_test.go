package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagOrdering(t *testing.T) {
	a := Tag{Time: 1, Micro: 0}
	b := Tag{Time: 1, Micro: 1}
	c := Tag{Time: 2, Micro: 0}

	assert.Equal(t, -1, a.Compare(b), "microsteps order within an instant")
	assert.Equal(t, -1, b.Compare(c), "time dominates microstep")
	assert.Equal(t, 0, a.Compare(Tag{Time: 1, Micro: 0}))
	assert.Equal(t, 1, c.Compare(a))

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
}

func TestTagAdvance(t *testing.T) {
	tag := Tag{Time: 1, Micro: 2}

	next := tag.NextMicro()
	assert.Equal(t, Tag{Time: 1, Micro: 3}, next)

	advanced := next.NextTime(0.5)
	assert.Equal(t, Tag{Time: 1.5, Micro: 0}, advanced, "microstep resets when time advances")
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "(1.5, 2)", Tag{Time: 1.5, Micro: 2}.String())
	assert.Equal(t, "(0, 0)", Tag{}.String())
}

package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestNew_DefaultsMaxPagesWhenNonPositive(t *testing.T) {
	p := New(0, arbor.NewLogger())
	assert.Equal(t, 2, cap(p.sem))
}

func TestShutdown_NoopWhenNeverStarted(t *testing.T) {
	p := New(2, arbor.NewLogger())
	assert.NotPanics(t, func() { p.Shutdown() })
}

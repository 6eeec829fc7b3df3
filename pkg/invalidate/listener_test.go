package invalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelNameIsStable(t *testing.T) {
	// Pinned: the trigger that emits NOTIFY in the timers migration must
	// match this literal exactly.
	assert.Equal(t, "timers_changed", Channel)
}

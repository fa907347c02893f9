package debounce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vanderheijden86/composer/pkg/clock"
)

func TestTrailingCallWins(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	d := NewWithClock(100*time.Millisecond, fc)

	var got []int
	for i := 1; i <= 3; i++ {
		d.Trigger(func() { got = append(got, i) })
		fc.Advance(60 * time.Millisecond)
	}
	assert.Empty(t, got, "each trigger restarts the quiet period")
	assert.True(t, d.Pending())

	fc.Advance(40 * time.Millisecond)
	assert.Equal(t, []int{3}, got)
	assert.False(t, d.Pending())
	assert.Zero(t, fc.Pending(), "only one timer is ever armed")
}

func TestFlushAndCancel(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	d := NewWithClock(time.Second, fc)

	calls := 0
	assert.False(t, d.Flush(), "nothing to flush")

	d.Trigger(func() { calls++ })
	assert.True(t, d.Flush())
	assert.Equal(t, 1, calls)
	fc.Advance(2 * time.Second)
	assert.Equal(t, 1, calls, "a flushed call does not run again")

	d.Trigger(func() { calls++ })
	d.Cancel()
	fc.Advance(2 * time.Second)
	assert.Equal(t, 1, calls)
	assert.False(t, d.Pending())
}

func TestDefaultDuration(t *testing.T) {
	assert.Equal(t, DefaultDuration, New(0).Duration())
	assert.Equal(t, DefaultDuration, New(-time.Second).Duration())
	assert.Equal(t, time.Second, New(time.Second).Duration())
}

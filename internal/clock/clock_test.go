package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	fc := NewFake(start)
	var fired []string
	fc.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	fc.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	fc.AfterFunc(5*time.Second, func() { fired = append(fired, "c") })

	fc.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, start.Add(3*time.Second), fc.Now())
	assert.Equal(t, 1, fc.Pending())
}

func TestFakeStop(t *testing.T) {
	fc := NewFake(time.Unix(0, 0))
	fired := false
	timer := fc.AfterFunc(time.Second, func() { fired = true })
	require.True(t, timer.Stop())
	require.False(t, timer.Stop())
	fc.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeCallbackSeesDeadlineTime(t *testing.T) {
	start := time.Unix(100, 0)
	fc := NewFake(start)
	var seen time.Time
	fc.AfterFunc(8*time.Second, func() { seen = fc.Now() })
	fc.Advance(10 * time.Second)
	assert.Equal(t, start.Add(8*time.Second), seen)
}

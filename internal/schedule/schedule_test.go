package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualClock_RunsInDueOrder(t *testing.T) {
	c := NewManualClock(epoch)
	var got []int
	c.AfterFunc(3*time.Second, func() { got = append(got, 3) })
	c.AfterFunc(1*time.Second, func() { got = append(got, 1) })
	c.AfterFunc(2*time.Second, func() { got = append(got, 2) })

	c.Advance(2 * time.Second)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, epoch.Add(2*time.Second), c.Now())

	c.Advance(time.Second)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Zero(t, c.Pending())
}

func TestManualClock_StopPreventsRun(t *testing.T) {
	c := NewManualClock(epoch)
	ran := false
	task := c.AfterFunc(time.Second, func() { ran = true })

	require.True(t, task.Stop())
	require.False(t, task.Stop())
	c.Advance(time.Minute)
	assert.False(t, ran)
}

func TestManualClock_CallbackSchedulesInsideWindow(t *testing.T) {
	c := NewManualClock(epoch)
	var at []time.Time
	c.AfterFunc(time.Second, func() {
		at = append(at, c.Now())
		c.AfterFunc(time.Second, func() { at = append(at, c.Now()) })
	})

	c.Advance(5 * time.Second)
	require.Len(t, at, 2)
	assert.Equal(t, epoch.Add(time.Second), at[0])
	assert.Equal(t, epoch.Add(2*time.Second), at[1])
	assert.Equal(t, epoch.Add(5*time.Second), c.Now())
}

func TestManualClock_NextDue(t *testing.T) {
	c := NewManualClock(epoch)
	_, ok := c.NextDue()
	assert.False(t, ok)

	c.AfterFunc(7*time.Second, func() {})
	c.AfterFunc(4*time.Second, func() {})
	d, ok := c.NextDue()
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, d)
}

func TestPeriodic_ReArmsAfterRun(t *testing.T) {
	c := NewManualClock(epoch)
	n := 0
	p := Every(c, 5*time.Second, func() { n++ })

	c.Advance(4 * time.Second)
	assert.Equal(t, 0, n)
	c.Advance(time.Second)
	assert.Equal(t, 1, n)
	c.Advance(10 * time.Second)
	assert.Equal(t, 3, n)

	p.Stop()
	c.Advance(time.Minute)
	assert.Equal(t, 3, n)
	assert.Zero(t, c.Pending())
}

func TestPeriodic_StopFromInsideRun(t *testing.T) {
	c := NewManualClock(epoch)
	n := 0
	var p *Periodic
	p = Every(c, time.Second, func() {
		n++
		p.Stop()
	})

	c.Advance(10 * time.Second)
	assert.Equal(t, 1, n)
	assert.Zero(t, c.Pending())
}

func TestReal_AfterFuncStops(t *testing.T) {
	task := Real{}.AfterFunc(time.Hour, func() {})
	assert.True(t, task.Stop())
}

package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrigger_CollapsesBurstIntoSingleCall(t *testing.T) {
	var calls int32

	trig := New(30*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	defer trig.Stop()

	for i := 0; i < 5; i++ {
		trig.Fire()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTrigger_FiresAgainAfterQuietPeriod(t *testing.T) {
	var calls int32

	trig := New(20*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	defer trig.Stop()

	trig.Fire()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	trig.Fire()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
}

func TestTrigger_StopPreventsFurtherCalls(t *testing.T) {
	var calls int32

	trig := New(10*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})

	trig.Stop()
	trig.Fire()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

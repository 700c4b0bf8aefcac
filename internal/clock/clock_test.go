package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelwifi/apd/internal/core/ports"
)

func TestAfterFires(t *testing.T) {
	c := New()
	var clk ports.Clock = c

	token := clk.After(10 * time.Millisecond)

	select {
	case fired := <-clk.Fires():
		assert.Equal(t, token, fired.Token)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestCancelPreventsDelivery(t *testing.T) {
	c := New()
	token := c.After(20 * time.Millisecond)
	c.Cancel(token)

	select {
	case fired := <-c.Fires():
		t.Fatalf("cancelled timer fired: %+v", fired)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	c := New()
	token := c.After(5 * time.Millisecond)
	c.Cancel(token)
	c.Cancel(token) // must not panic
}

func TestDistinctTokensPerTimer(t *testing.T) {
	c := New()
	t1 := c.After(5 * time.Millisecond)
	t2 := c.After(5 * time.Millisecond)
	assert.NotEqual(t, t1, t2)

	seen := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case fired := <-c.Fires():
			seen[fired.Token] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for both timers")
		}
	}
	assert.True(t, seen[t1])
	assert.True(t, seen[t2])
}

func TestNowAdvances(t *testing.T) {
	c := New()
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	require.True(t, b.After(a))
}

package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_DeliversInOrderWithoutDropping(t *testing.T) {
	q := newQueue[int]()
	const n = 500
	for i := 0; i < n; i++ {
		q.push(i)
	}

	for i := 0; i < n; i++ {
		select {
		case v := <-q.out:
			require.Equal(t, i, v)
		case <-time.After(time.Second):
			t.Fatalf("value %d never arrived", i)
		}
	}
}

func TestQueue_CloseDrainsThenClosesOut(t *testing.T) {
	q := newQueue[string]()
	q.push("a")
	q.push("b")
	q.close()

	var got []string
	for v := range q.out {
		got = append(got, v)
	}
	require.Equal(t, []string{"a", "b"}, got)
}

func TestQueue_PushAfterCloseIsNoop(t *testing.T) {
	q := newQueue[int]()
	q.close()
	<-q.out // wait for relay to observe close and close out

	q.push(1) // must not panic or block
}

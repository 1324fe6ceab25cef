package presenter

import (
	"testing"

	"github.com/monetiq/realtime/src/types"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		priority types.Priority
		want     Decision
	}{
		{types.PriorityUrgent, Decision{Toast: true, Sound: true, Persistent: true}},
		{types.PriorityHigh, Decision{Toast: true, Sound: true, Persistent: false}},
		{types.PriorityMedium, Decision{Toast: true, Sound: false, Persistent: false}},
		{types.PriorityLow, Decision{Toast: true, Sound: false, Persistent: false}},
		{types.Priority("unknown"), Decision{Toast: true, Sound: false, Persistent: false}},
	}

	for _, tc := range cases {
		t.Run(string(tc.priority), func(t *testing.T) {
			if got := Decide(tc.priority); got != tc.want {
				t.Errorf("Decide(%s) = %+v, want %+v", tc.priority, got, tc.want)
			}
		})
	}
}

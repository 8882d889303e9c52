package backpressure

import (
	"testing"
)

func TestLevelClassification(t *testing.T) {
	cases := []struct {
		load float64
		want Level
	}{
		{0.0, Normal},
		{0.69, Normal},
		{0.7, Warning},
		{0.84, Warning},
		{0.85, Critical},
		{0.94, Critical},
		{0.95, Emergency},
		{1.0, Emergency},
	}
	for _, tc := range cases {
		if got := levelFor(tc.load); got != tc.want {
			t.Errorf("levelFor(%v) = %v, want %v", tc.load, got, tc.want)
		}
	}
}

func TestAdmissionRejectsAtCapacity(t *testing.T) {
	c := New(100, nil)
	defer c.Shutdown()

	for i := 0; i < 100; i++ {
		if !c.CanEnqueue() {
			t.Fatalf("CanEnqueue false at %d of 100", i)
		}
		if !c.Enqueued() {
			t.Fatalf("Enqueued rejected at %d of 100", i)
		}
	}

	if c.CanEnqueue() {
		t.Fatal("CanEnqueue true at capacity")
	}
	if c.Enqueued() {
		t.Fatal("Enqueued accepted past capacity")
	}
	if got := c.DroppedCount(); got != 1 {
		t.Fatalf("droppedMessages = %d, want 1", got)
	}
	if c.Level() != Emergency {
		t.Fatalf("level = %v, want Emergency at full queue", c.Level())
	}
	if !c.Shedding() {
		t.Fatal("shedding not enabled at Emergency")
	}
}

func TestDrainLowersLevel(t *testing.T) {
	c := New(100, nil)
	defer c.Shutdown()

	var transitions []Level
	c.OnLevelChange(func(_, next Level) {
		transitions = append(transitions, next)
	})

	for i := 0; i < 100; i++ {
		c.Enqueued()
	}
	for i := 0; i < 60; i++ {
		c.Drained()
	}

	if c.Level() != Normal {
		t.Fatalf("level = %v after drain to 40%%, want Normal", c.Level())
	}
	if c.Shedding() {
		t.Fatal("shedding still active after recovering from Emergency")
	}
	if len(transitions) == 0 {
		t.Fatal("no level transitions observed")
	}
	if transitions[len(transitions)-1] != Normal {
		t.Fatalf("last transition = %v, want Normal", transitions[len(transitions)-1])
	}
}

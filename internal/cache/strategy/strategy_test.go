package strategy

import (
	"testing"
	"time"
)

func TestClassifySequential(t *testing.T) {
	tr := New()
	base := time.Now()
	for i := 0; i < 10; i++ {
		tr.RecordAccess(keyN(i), base.Add(time.Duration(i)*time.Millisecond))
	}
	if p := tr.Classify(base); p != PatternSequential {
		t.Fatalf("Classify() = %v, want Sequential", p)
	}
	if p := PatternSequential.RecommendedStrategy(); p != "lru" {
		t.Fatalf("RecommendedStrategy() = %v, want lru", p)
	}
}

func keyN(i int) string {
	return "item-" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

func TestClassifyBurst(t *testing.T) {
	tr := New()
	base := time.Now()

	at := base
	tr.RecordAccess("hot", at)
	letters := "abcdefghijklmnop"
	for i := 0; i < len(letters); i++ {
		at = at.Add(time.Second)
		tr.RecordAccess("other-"+string(letters[i]), at)
	}
	at = at.Add(2 * time.Minute)
	tr.RecordAccess("hot", at)
	at = at.Add(2 * time.Minute)
	tr.RecordAccess("hot", at)

	if p := tr.Classify(at); p != PatternBurst {
		t.Fatalf("Classify() = %v, want Burst", p)
	}
}

func TestClassifyRandomOnSmallWindow(t *testing.T) {
	tr := New()
	tr.RecordAccess("a", time.Now())
	if p := tr.Classify(time.Now()); p != PatternRandom {
		t.Fatalf("Classify() = %v, want Random for tiny window", p)
	}
}

func TestPredictNextReturnsRecentlyAccessedKeys(t *testing.T) {
	tr := New()
	now := time.Now()
	tr.RecordAccess("a", now.Add(-3*time.Second))
	tr.RecordAccess("b", now.Add(-2*time.Second))
	tr.RecordAccess("a", now.Add(-1*time.Second))

	preds := tr.PredictNext(2, now)
	if len(preds) != 2 {
		t.Fatalf("PredictNext() returned %d keys, want 2", len(preds))
	}
}

func TestRecommendPrefetchFollowsTransitionFrequency(t *testing.T) {
	tr := New()
	now := time.Now()
	for i := 0; i < 5; i++ {
		tr.RecordAccess("a", now)
		tr.RecordAccess("b", now)
	}
	tr.RecordAccess("a", now)
	tr.RecordAccess("c", now)

	rec := tr.RecommendPrefetch("a", 1)
	if len(rec) != 1 || rec[0] != "b" {
		t.Fatalf("RecommendPrefetch(a) = %v, want [b]", rec)
	}
}

func TestCheckAlertsFiresOnLowHitRateAndHighLatency(t *testing.T) {
	tr := New()
	var fired []Alert
	tr.OnAlert(func(a Alert) { fired = append(fired, a) })

	tr.CheckAlerts(0.3, 20*time.Millisecond, time.Now())

	if len(fired) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(fired))
	}
}

func TestCheckAlertsSilentWhenHealthy(t *testing.T) {
	tr := New()
	var fired []Alert
	tr.OnAlert(func(a Alert) { fired = append(fired, a) })

	tr.CheckAlerts(0.9, time.Millisecond, time.Now())

	if len(fired) != 0 {
		t.Fatalf("expected no alerts, got %d", len(fired))
	}
}

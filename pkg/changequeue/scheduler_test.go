package changequeue

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/vanderheijden86/composer/pkg/clock"
	"github.com/vanderheijden86/composer/pkg/debug"
	"github.com/vanderheijden86/composer/pkg/model"
)

type delivery struct {
	entityID string
	changes  []model.ChangeEvent
}

type recorder struct {
	deliveries []delivery
}

func (r *recorder) consume(entityID string, changes []model.ChangeEvent) {
	r.deliveries = append(r.deliveries, delivery{entityID: entityID, changes: changes})
}

func newTestScheduler(cfg Config) (*Scheduler, *recorder, *clock.Fake) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rec := &recorder{}
	s := New(cfg, rec.consume, WithClock(fc), WithLogger(debug.Discard()))
	return s, rec, fc
}

func change(entityID, field string, newValue any) model.ChangeEvent {
	return model.ChangeEvent{EntityID: entityID, EntityType: model.KindComponent, Field: field, NewValue: newValue}
}

func TestFlushDeliversPerEntityInArrivalOrder(t *testing.T) {
	s, rec, _ := newTestScheduler(DefaultConfig())

	s.Queue("b", change("b", "text", "1"))
	s.Queue("a", change("a", "color", "red"))
	s.Queue("b", change("b", "text", "2"))
	s.Flush()

	if len(rec.deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(rec.deliveries))
	}
	if rec.deliveries[0].entityID != "b" || rec.deliveries[1].entityID != "a" {
		t.Errorf("expected key insertion order [b a], got [%s %s]",
			rec.deliveries[0].entityID, rec.deliveries[1].entityID)
	}
	got := rec.deliveries[0].changes
	if len(got) != 2 || got[0].NewValue != "1" || got[1].NewValue != "2" {
		t.Errorf("unexpected changes for b: %+v", got)
	}
	if e, c := s.Pending(); e != 0 || c != 0 {
		t.Errorf("expected empty queue after flush, got %d entities / %d changes", e, c)
	}
}

func TestFlushAndClearOnEmptyQueueAreNoOps(t *testing.T) {
	s, rec, _ := newTestScheduler(DefaultConfig())
	s.Flush()
	s.Clear()
	s.Flush()
	if len(rec.deliveries) != 0 {
		t.Errorf("expected no consumer calls, got %d", len(rec.deliveries))
	}
	if st := s.Stats(); st.Flushes != 0 {
		t.Errorf("expected 0 flushes recorded, got %d", st.Flushes)
	}
}

func TestQuietTimerFiresOnlyAfterDebounce(t *testing.T) {
	s, rec, fc := newTestScheduler(DefaultConfig())

	s.Queue("c1", change("c1", "text", "a"))
	fc.Advance(499 * time.Millisecond)
	if len(rec.deliveries) != 0 {
		t.Fatalf("delivered before debounce elapsed")
	}
	fc.Advance(time.Millisecond)
	if len(rec.deliveries) != 1 {
		t.Fatalf("expected exactly one delivery at debounce, got %d", len(rec.deliveries))
	}
	if st := s.Stats(); st.LastTrigger != TriggerQuiet {
		t.Errorf("expected quiet trigger, got %v", st.LastTrigger)
	}

	fc.Advance(5 * time.Second)
	if len(rec.deliveries) != 1 {
		t.Errorf("expected no further deliveries, got %d", len(rec.deliveries))
	}
}

func TestQueueResetsQuietTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchThreshold = 0
	s, rec, fc := newTestScheduler(cfg)

	s.Queue("c1", change("c1", "text", "a"))
	fc.Advance(400 * time.Millisecond)
	s.Queue("c1", change("c1", "text", "b"))
	fc.Advance(400 * time.Millisecond)
	if len(rec.deliveries) != 0 {
		t.Fatalf("quiet timer was not reset by the second change")
	}
	fc.Advance(100 * time.Millisecond)
	if len(rec.deliveries) != 1 || len(rec.deliveries[0].changes) != 2 {
		t.Fatalf("expected one delivery with both changes, got %+v", rec.deliveries)
	}
}

func TestBatchEscalationFlushesOnNextFrame(t *testing.T) {
	s, rec, fc := newTestScheduler(DefaultConfig())

	s.Queue("c1", change("c1", "text", "a"))
	fc.Advance(100 * time.Millisecond)
	s.Queue("c1", change("c1", "color", "red"))
	fc.Advance(100 * time.Millisecond)
	s.Queue("c1", change("c1", "text", "b"))

	fc.Advance(DefaultFrameInterval)
	if len(rec.deliveries) != 1 {
		t.Fatalf("expected escalated delivery within one frame, got %d deliveries", len(rec.deliveries))
	}
	d := rec.deliveries[0]
	if d.entityID != "c1" || len(d.changes) != 3 {
		t.Fatalf("unexpected delivery: %+v", d)
	}
	want := []string{"a", "red", "b"}
	for i, c := range d.changes {
		if c.NewValue != want[i] {
			t.Errorf("change %d: expected %q, got %v", i, want[i], c.NewValue)
		}
	}
	st := s.Stats()
	if st.Escalations != 1 || st.LastTrigger != TriggerFrame {
		t.Errorf("expected one frame escalation, got %+v", st)
	}

	// The quiet timer was cancelled with the flush.
	fc.Advance(time.Second)
	if len(rec.deliveries) != 1 {
		t.Errorf("stale quiet timer delivered again")
	}
}

func TestBatchWindowExpiryPreventsEscalation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debounce = 2 * time.Second
	s, rec, fc := newTestScheduler(cfg)

	s.Queue("c1", change("c1", "text", "1"))
	fc.Advance(600 * time.Millisecond)
	s.Queue("c1", change("c1", "text", "2"))
	fc.Advance(600 * time.Millisecond)
	s.Queue("c1", change("c1", "text", "3"))
	fc.Advance(100 * time.Millisecond)

	if len(rec.deliveries) != 0 {
		t.Fatalf("escalated although the batch window had expired")
	}
	if st := s.Stats(); st.Escalations != 0 {
		t.Errorf("expected 0 escalations, got %d", st.Escalations)
	}
}

func TestEscalationDisabledWithZeroThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchThreshold = 0
	s, rec, fc := newTestScheduler(cfg)

	for i := 0; i < 10; i++ {
		s.Queue("c1", change("c1", "text", i))
	}
	fc.Advance(100 * time.Millisecond)
	if len(rec.deliveries) != 0 {
		t.Fatalf("expected no escalation with threshold 0")
	}
	fc.Advance(400 * time.Millisecond)
	if len(rec.deliveries) != 1 {
		t.Fatalf("expected quiet-timer delivery, got %d", len(rec.deliveries))
	}
}

func TestSizeCapForcesImmediateDelivery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBatchSize = 5
	cfg.BatchThreshold = 0
	s, rec, _ := newTestScheduler(cfg)

	for i := 0; i < 4; i++ {
		s.Queue(fmt.Sprintf("e%d", i%2), change("e", "n", i))
	}
	if len(rec.deliveries) != 0 {
		t.Fatalf("delivered before reaching the cap")
	}
	s.Queue("e0", change("e0", "n", 4))
	if len(rec.deliveries) != 2 {
		t.Fatalf("expected cap flush of 2 entities without advancing time, got %d", len(rec.deliveries))
	}
	st := s.Stats()
	if st.CapFlushes != 1 || st.Delivered != 5 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestClearDiscards(t *testing.T) {
	s, rec, fc := newTestScheduler(DefaultConfig())
	s.Queue("c1", change("c1", "text", "a"))
	s.Queue("c2", change("c2", "text", "b"))
	s.Clear()
	fc.Advance(time.Second)

	if len(rec.deliveries) != 0 {
		t.Fatalf("cleared changes were delivered")
	}
	if st := s.Stats(); st.Discarded != 2 {
		t.Errorf("expected 2 discarded, got %d", st.Discarded)
	}
}

func TestConsumerMayQueueDuringDelivery(t *testing.T) {
	fc := clock.NewFake(time.Now())
	var got []string
	var s *Scheduler
	s = New(DefaultConfig(), func(id string, changes []model.ChangeEvent) {
		got = append(got, id)
		if id == "first" {
			s.Queue("second", change("second", "text", "x"))
		}
	}, WithClock(fc), WithLogger(debug.Discard()))

	s.Queue("first", change("first", "text", "x"))
	s.Flush()
	if len(got) != 1 {
		t.Fatalf("expected only the first entity delivered, got %v", got)
	}
	if _, n := s.Pending(); n != 1 {
		t.Fatalf("expected the re-entrant change to stay queued, got %d", n)
	}
	s.Flush()
	if len(got) != 2 || got[1] != "second" {
		t.Errorf("expected second delivered on next flush, got %v", got)
	}
}

func TestCloseCancelsTimers(t *testing.T) {
	s, rec, fc := newTestScheduler(DefaultConfig())
	s.Queue("c1", change("c1", "text", "a"))
	s.Close()
	fc.Advance(time.Second)
	if len(rec.deliveries) != 0 {
		t.Fatalf("timer fired after Close")
	}
	s.Queue("c1", change("c1", "text", "b"))
	if _, n := s.Pending(); n != 1 {
		t.Errorf("expected closed queue to keep 1 change and reject new ones, got %d", n)
	}
	s.Flush()
	if len(rec.deliveries) != 1 {
		t.Errorf("expected Flush after Close to deliver remaining changes")
	}
}

func TestStatsMovingAverage(t *testing.T) {
	s, _, _ := newTestScheduler(DefaultConfig())
	for i := 0; i < 12; i++ {
		s.Queue("c1", change("c1", "n", i))
		s.Flush()
	}
	st := s.Stats()
	if st.Flushes != 12 {
		t.Errorf("expected 12 flushes, got %d", st.Flushes)
	}
	if s.samples.Len() != 10 {
		t.Errorf("expected window capped at 10 samples, got %d", s.samples.Len())
	}
}

// Every queued change is delivered exactly once, in per-entity queue order,
// whatever mix of timers, escalations and cap flushes happens in between.
func TestPropertyDeliveryOrderAndExactlyOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := Config{
			Debounce:       time.Duration(rapid.IntRange(1, 600).Draw(rt, "debounce")) * time.Millisecond,
			BatchThreshold: rapid.IntRange(0, 6).Draw(rt, "threshold"),
			BatchWindow:    time.Duration(rapid.IntRange(1, 1500).Draw(rt, "window")) * time.Millisecond,
			MaxBatchSize:   rapid.IntRange(1, 20).Draw(rt, "cap"),
			FrameInterval:  16 * time.Millisecond,
		}
		fc := clock.NewFake(time.Unix(0, 0))
		delivered := map[string][]int{}
		s := New(cfg, func(id string, changes []model.ChangeEvent) {
			for _, c := range changes {
				delivered[id] = append(delivered[id], c.NewValue.(int))
			}
		}, WithClock(fc), WithLogger(debug.Discard()))

		queued := map[string][]int{}
		steps := rapid.IntRange(1, 80).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom([]string{"page", "card", "button", "title"}).Draw(rt, "entity")
			s.Queue(id, change(id, "f", i))
			queued[id] = append(queued[id], i)
			fc.Advance(time.Duration(rapid.IntRange(0, 700).Draw(rt, "gap")) * time.Millisecond)
		}
		s.Flush()

		for id, want := range queued {
			got := delivered[id]
			if len(got) != len(want) {
				rt.Fatalf("%s: delivered %d of %d changes", id, len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					rt.Fatalf("%s: order mismatch at %d: %v vs %v", id, i, got, want)
				}
			}
		}
		if _, n := s.Pending(); n != 0 {
			rt.Fatalf("queue not empty after final flush: %d", n)
		}
	})
}

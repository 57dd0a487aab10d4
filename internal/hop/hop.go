// Package hop is the channel-hop scheduler (spec §4.5, component C5): a
// single global tick thread that advances every Running, hopping source's
// channel according to its configured rate, split/offset staggering and
// optional shuffle.
package hop

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/jpillora/backoff"

	"github.com/kismetwireless/kismet-datasource-core/internal/eventbus"
	"github.com/kismetwireless/kismet-datasource-core/internal/metrics"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
	"github.com/kismetwireless/kismet-datasource-core/internal/source"
)

const maxTickHz = 100.0

// entry is the scheduler's private bookkeeping for one hopping source; the
// authoritative hop configuration (list/rate/offset/shuffle) still lives on
// the Source and is re-read every tick so a set_hop ack is picked up without
// re-registering.
type entry struct {
	src         *source.Source
	cursor      uint32
	nextTick    time.Time
	sentAt      time.Time
	slipStreak  int
	bo          *backoff.Backoff
}

// Scheduler is the global hop tick thread (spec §4.5).
type Scheduler struct {
	mu               sync.Mutex
	entries          map[uint32]*entry
	groupCounts      map[string]uint32
	tickHz           float64
	ackSlowThreshold time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler constructs a Scheduler. A tickHz that is not positive or is
// above 100 is replaced by 100 (spec §4.5: "never faster than 100 Hz").
func NewScheduler(tickHz float64, ackSlowThreshold time.Duration) *Scheduler {
	if tickHz <= 0 || tickHz > maxTickHz {
		tickHz = maxTickHz
	}
	if ackSlowThreshold <= 0 {
		ackSlowThreshold = 100 * time.Millisecond
	}
	return &Scheduler{
		entries:          make(map[uint32]*entry),
		groupCounts:      make(map[string]uint32),
		tickHz:           tickHz,
		ackSlowThreshold: ackSlowThreshold,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// SubscribeBus auto-deregisters a source from the hop schedule when it
// errors or closes (spec §4.5: "removing a source from Running immediately
// deschedules its ticks").
func (s *Scheduler) SubscribeBus(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.DatasourceError, func(ev eventbus.Event) { s.Remove(ev.SourceKey) })
	bus.Subscribe(eventbus.DatasourceClosed, func(ev eventbus.Event) { s.Remove(ev.SourceKey) })
}

// Add registers src for hopping if its current hop_state says it should
// hop; a no-op otherwise. Call again after a set_hop ack changes hopping
// from false to true.
func (s *Scheduler) Add(src *source.Source) {
	hs := src.HopState()
	if !hs.Hopping || len(hs.List) == 0 || hs.RateHz <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := src.KeyValue()
	if _, exists := s.entries[key]; exists {
		return
	}

	basePeriod := time.Duration(float64(time.Second) / hs.RateHz)
	e := &entry{
		src: src,
		bo:  &backoff.Backoff{Min: basePeriod, Max: basePeriod * 8, Factor: 2, Jitter: false},
	}

	n := len(hs.List)
	var cursor uint32
	if hs.Split {
		groupKey := groupKeyFor(hs.List)
		idx := s.groupCounts[groupKey]
		s.groupCounts[groupKey] = idx + 1
		cursor = (uint32(n)/(idx+1))*idx + hs.Offset
	} else {
		cursor = hs.Offset
	}
	e.cursor = cursor % uint32(n)
	e.nextTick = time.Now()

	s.entries[key] = e
}

// Remove deschedules a source's ticks.
func (s *Scheduler) Remove(key uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Start launches the global tick loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts the tick loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.tickHz))
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	due := make([]*entry, 0, len(s.entries))
	for key, e := range s.entries {
		if e.src.State() != source.StateRunning {
			delete(s.entries, key)
			continue
		}
		if !now.Before(e.nextTick) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.tickOne(e, now)
	}
}

// tickOne implements one source's tick (spec §4.5 tick algorithm).
func (s *Scheduler) tickOne(e *entry, now time.Time) {
	hs := e.src.HopState()
	n := uint32(len(hs.List))
	if n == 0 || hs.RateHz <= 0 {
		return
	}

	e.cursor = (e.cursor + 1) % n
	idx := e.cursor
	if hs.Shuffle {
		idx = shuffleIndex(e.cursor, n, hs.ShuffleSkip)
	}
	channel := hs.List[idx]

	if !e.sentAt.IsZero() && e.src.LastChannelAckAt().Before(e.sentAt) && now.Sub(e.sentAt) > s.ackSlowThreshold {
		metrics.ChannelSetSlow.WithLabelValues(e.src.UUID()).Inc()
		printer.Warningf("hop: source %s channel_set_slow (streak %d)\n", e.src.UUID(), e.slipStreak+1)
		e.slipStreak++
	} else {
		e.slipStreak = 0
		e.bo.Reset()
	}

	e.src.HopChannelSet(channel)
	e.sentAt = now

	basePeriod := time.Duration(float64(time.Second) / hs.RateHz)
	e.bo.Min = basePeriod
	e.bo.Max = basePeriod * 8

	period := basePeriod
	if e.slipStreak >= 3 {
		period = e.bo.Duration()
	}
	e.nextTick = now.Add(period)
}

func groupKeyFor(list []string) string {
	return strings.Join(list, "\x00")
}

// shuffleIndex maps cursor into a deterministic permutation of [0, n) so
// repeated ticks visit every element exactly once per full cycle (spec §8:
// "the sequence of channels ... is a cyclic walk of hop_state.list").
// Multiplying by a stride coprime with n is a bijection on Z_n, so the
// cyclic walk 0..n-1 maps onto a single full cycle through the shuffled
// order; shuffleSkip seeds which coprime stride is chosen.
func shuffleIndex(cursor, n, shuffleSkip uint32) uint32 {
	if n <= 1 {
		return 0
	}
	h := xxhash.New32()
	h.WriteString(strconv.FormatUint(uint64(shuffleSkip), 10))
	stride := coprimeStride(n, h.Sum32())
	return (cursor * stride) % n
}

func coprimeStride(n, seed uint32) uint32 {
	stride := seed % n
	if stride == 0 {
		stride = 1
	}
	for gcd(stride, n) != 1 {
		stride++
		if stride >= n {
			stride = 1
		}
	}
	return stride
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

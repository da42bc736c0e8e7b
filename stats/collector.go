// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/golang-collections/go-datastructures/queue"

	"github.com/intel-go/nffbench/common"
)

const (
	eventQueueHint = 64
	eventBatch     = 16
)

// EventKind is type of progress event.
type EventKind int

// Progress events sent to a notifier.
const (
	IntervalEvent EventKind = iota
	TargetFoundEvent
)

func (k EventKind) String() string {
	if k == TargetFoundEvent {
		return "target_found"
	}
	return "interval"
}

// Event is live progress of a run. Interval events carry rates of the
// last sampling interval, target found events carry the tag and load
// of the found rate.
type Event struct {
	Kind        EventKind
	Tag         string
	TimeMs      int64
	TxPPS       float64
	RxPPS       float64
	DropPct     float64
	LoadPercent float64
}

// Notifier receives progress events. Errors and panics of a notifier
// are logged and ignored.
type Notifier interface {
	Notify(e Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(e Event) error

// Notify calls f(e).
func (f NotifierFunc) Notify(e Event) error {
	return f(e)
}

// IntervalSample is a generator snapshot taken during a run. Tag is
// set for the samples recorded when a search target was found.
type IntervalSample struct {
	TimeMs int64     `json:"time_ms"`
	Tag    string    `json:"tag,omitempty"`
	Stats  *Snapshot `json:"stats"`
}

// IntervalCollector keeps periodic samples of a run in arrival order.
type IntervalCollector struct {
	now       func() time.Time
	start     time.Time
	samples   []IntervalSample
	lastTx    int64
	lastRx    int64
	lastMs    int64
	mu        sync.Mutex
	notifier  Notifier
	events    *queue.Queue
	pending   sync.WaitGroup
	delivered chan struct{}
}

// NewIntervalCollector returns collector with elapsed time measured by
// now from the moment of the call.
func NewIntervalCollector(now func() time.Time) *IntervalCollector {
	return &IntervalCollector{
		now:   now,
		start: now(),
	}
}

func (c *IntervalCollector) elapsedMs() int64 {
	return int64(c.now().Sub(c.start) / time.Millisecond)
}

// delivery is an event queued for the notifier attached when it was
// sent.
type delivery struct {
	to Notifier
	e  Event
}

// AttachNotifier starts delivery of progress events to n. Events are
// queued and delivered by a separate goroutine until Close. Attaching
// another notifier redirects events sent from then on, queued events
// still go to the previous one.
func (c *IntervalCollector) AttachNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
	if c.events != nil {
		return
	}
	c.events = queue.New(eventQueueHint)
	c.delivered = make(chan struct{})
	go c.deliver(c.events, c.delivered)
}

func (c *IntervalCollector) deliver(events *queue.Queue, done chan struct{}) {
	defer close(done)
	for {
		items, err := events.Get(eventBatch)
		if err != nil {
			return
		}
		for _, item := range items {
			c.notify(item.(delivery))
		}
	}
}

func (c *IntervalCollector) notify(d delivery) {
	defer c.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			common.LogError("Progress notifier panicked on", d.e.Kind, "event:", r)
		}
	}()
	common.LogErrorsIfNotNil(d.to.Notify(d.e), "Progress notifier failed on", d.e.Kind, "event")
}

func (c *IntervalCollector) send(e Event) {
	c.mu.Lock()
	n, events := c.notifier, c.events
	c.mu.Unlock()
	if events == nil {
		return
	}
	c.pending.Add(1)
	if err := events.Put(delivery{to: n, e: e}); err != nil {
		c.pending.Done()
		common.LogWarning("Dropping progress event:", err)
	}
}

// Close waits for queued events to be delivered and stops delivery.
func (c *IntervalCollector) Close() {
	c.mu.Lock()
	events, delivered := c.events, c.delivered
	c.events = nil
	c.mu.Unlock()
	if events == nil {
		return
	}
	c.pending.Wait()
	events.Dispose()
	<-delivered
}

// Add appends a sample and notifies rates since the previous sample.
func (c *IntervalCollector) Add(s *Snapshot) {
	ms := c.elapsedMs()
	c.samples = append(c.samples, IntervalSample{TimeMs: ms, Stats: s})
	if s == nil {
		return
	}
	txDiff := s.Overall.TX.TotalPkts - c.lastTx
	rxDiff := s.Overall.RX.TotalPkts - c.lastRx
	e := Event{Kind: IntervalEvent, TimeMs: ms}
	if dt := ms - c.lastMs; dt > 0 {
		e.TxPPS = float64(txDiff) * 1000 / float64(dt)
		e.RxPPS = float64(rxDiff) * 1000 / float64(dt)
	}
	if txDiff != 0 {
		e.DropPct = float64(txDiff-rxDiff) * 100 / float64(txDiff)
	}
	c.lastTx = s.Overall.TX.TotalPkts
	c.lastRx = s.Overall.RX.TotalPkts
	c.lastMs = ms
	c.send(e)
}

// AddNdrPdr records a sample for a found target and notifies it.
func (c *IntervalCollector) AddNdrPdr(tag string, loadPercent float64, s *Snapshot) {
	ms := c.elapsedMs()
	c.samples = append(c.samples, IntervalSample{TimeMs: ms, Tag: tag, Stats: s})
	e := Event{Kind: TargetFoundEvent, Tag: tag, TimeMs: ms, LoadPercent: loadPercent}
	if s != nil {
		e.TxPPS = s.Overall.TX.PktRate
		e.RxPPS = s.Overall.RX.PktRate
		e.DropPct = float64(s.Overall.DropRatePercent)
	}
	c.send(e)
}

// Reset restarts tx/rx deltas for a new run. Elapsed time is not
// reset.
func (c *IntervalCollector) Reset() {
	c.lastTx = 0
	c.lastRx = 0
	c.lastMs = c.elapsedMs()
}

// Get returns all samples.
func (c *IntervalCollector) Get() []IntervalSample {
	return c.samples
}

// Peek returns the newest sample or nil.
func (c *IntervalCollector) Peek() *IntervalSample {
	if len(c.samples) == 0 {
		return nil
	}
	return &c.samples[len(c.samples)-1]
}

// IterationRecord is the digest of one search probe. Found holds
// rates in pps of the targets resolved by this probe.
type IterationRecord struct {
	TotalTxPPS     int64             `json:"total_tx_pps"`
	TxPPS          uint64            `json:"tx_pps"`
	TxPkts         int64             `json:"tx_pkts"`
	RxPPS          float64           `json:"rx_pps"`
	RxPkts         int64             `json:"rx_pkts"`
	DropPkts       int64             `json:"drop_pct"`
	DropPercentage Percent           `json:"drop_percentage"`
	TimeMs         int64             `json:"time_ms"`
	Warning        string            `json:"warning,omitempty"`
	Found          map[string]uint64 `json:"-"`
}

type plainRecord IterationRecord

// MarshalJSON writes found rates as "<tag>_pps" fields.
func (r IterationRecord) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(plainRecord(r))
	if err != nil || len(r.Found) == 0 {
		return data, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for tag, pps := range r.Found {
		v, err := json.Marshal(pps)
		if err != nil {
			return nil, err
		}
		fields[tag+"_pps"] = v
	}
	return json.Marshal(fields)
}

// RecordHandle refers to a record of an IterationCollector.
type RecordHandle int

// NoRecord is handle of no record.
const NoRecord RecordHandle = -1

// IterationCollector keeps one record per probe.
type IterationCollector struct {
	now     func() time.Time
	records []IterationRecord
}

// NewIterationCollector returns collector stamping records with now.
func NewIterationCollector(now func() time.Time) *IterationCollector {
	return &IterationCollector{now: now}
}

// Add digests final stats of a probe at requested rate and returns
// handle of the new record.
func (c *IterationCollector) Add(s *Snapshot, requestedTxPPS uint64) RecordHandle {
	drop := float64(s.Overall.DropRatePercent)
	rec := IterationRecord{
		TotalTxPPS:     int64(s.TotalTxRate),
		TxPPS:          requestedTxPPS,
		TxPkts:         s.Overall.TX.TotalPkts,
		RxPkts:         s.Overall.RX.TotalPkts,
		DropPkts:       s.Overall.RX.DroppedPkts,
		DropPercentage: s.Overall.DropRatePercent,
		TimeMs:         c.now().UnixNano() / int64(time.Millisecond),
		Warning:        s.Warning,
	}
	if !math.IsNaN(drop) && !math.IsInf(drop, 0) {
		rec.RxPPS = float64(requestedTxPPS) * (100 - drop) / 100
	}
	c.records = append(c.records, rec)
	return RecordHandle(len(c.records) - 1)
}

// AddNdrPdr tags record h with the rate found for tag.
func (c *IterationCollector) AddNdrPdr(h RecordHandle, tag string, pps uint64) error {
	rec := c.Record(h)
	if rec == nil {
		return common.NewBenchErrorf(common.BadArgument, "no iteration record %d for %s", h, tag)
	}
	if rec.Found == nil {
		rec.Found = map[string]uint64{}
	}
	rec.Found[tag] = pps
	return nil
}

// Record returns record of handle h or nil.
func (c *IterationCollector) Record(h RecordHandle) *IterationRecord {
	if h < 0 || int(h) >= len(c.records) {
		return nil
	}
	return &c.records[h]
}

// Last returns handle of the newest record or NoRecord.
func (c *IterationCollector) Last() RecordHandle {
	return RecordHandle(len(c.records) - 1)
}

// Get returns all records.
func (c *IterationCollector) Get() []IterationRecord {
	return c.records
}

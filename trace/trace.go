// Package trace records simulation-mode execution events and serializes
// them to a Chrome-tracing-compatible JSON array. Grounded on the
// teacher's ExecutionStats (runtime/runtime.go), generalized from a
// rolling average into a full per-task event log since simulation mode
// needs the complete timeline, not just aggregate latency.
package trace

import (
	"encoding/json"
	"sync"
)

// Event is one simulated task execution: the worker's virtual-clock
// window during which it "ran" the task.
type Event struct {
	TaskID     uint32 `json:"task_id"`
	WorkerID   int    `json:"worker_id"`
	StartCycle uint64 `json:"start_cycle"`
	EndCycle   uint64 `json:"end_cycle"`
	Name       string `json:"name"`
}

// Recorder collects events from worker goroutines under a single mutex.
// Simulation mode runs at cycle granularity, not wall-clock rates, so
// contention here is not a bottleneck worth a lock-free structure.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one event.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a snapshot copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// chromeTraceEvent is one entry of the Chrome Trace Event JSON format
// (https://chromium.org - "complete" event type "X", documented externally
// per spec.md's scope exclusion of the visualization format itself).
type chromeTraceEvent struct {
	Name string `json:"name"`
	Cat  string `json:"cat"`
	Ph   string `json:"ph"`
	Ts   uint64 `json:"ts"`
	Dur  uint64 `json:"dur"`
	Pid  int    `json:"pid"`
	Tid  int    `json:"tid"`
	Args struct {
		TaskID uint32 `json:"task_id"`
	} `json:"args"`
}

// cyclesToMicros scales a cycle count to microseconds, per spec.md §6
// ("Cycle is scaled x1000 to microseconds when emitted").
func cyclesToMicros(cycles uint64) uint64 {
	return cycles * 1000
}

// MarshalChromeJSON renders the recorded events as a Chrome-tracing JSON
// array, one "complete" event per task execution.
func (r *Recorder) MarshalChromeJSON() ([]byte, error) {
	events := r.Events()
	out := make([]chromeTraceEvent, len(events))
	for i, e := range events {
		out[i] = chromeTraceEvent{
			Name: e.Name,
			Cat:  "kernel",
			Ph:   "X",
			Ts:   cyclesToMicros(e.StartCycle),
			Dur:  cyclesToMicros(e.EndCycle - e.StartCycle),
			Pid:  1,
			Tid:  e.WorkerID,
		}
		out[i].Args.TaskID = e.TaskID
	}
	return json.Marshal(out)
}

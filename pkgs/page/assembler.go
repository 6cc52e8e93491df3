package page

import (
	"bytes"
)

// accState is the lifecycle of one requested UID inside a fetch job.
type accState int

const (
	statePending accState = iota
	stateReceiving
	stateComplete
	stateFailed
)

func (s accState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateReceiving:
		return "receiving"
	case stateComplete:
		return "complete"
	case stateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// accumulator collects the flags and byte fragments of one UID.
type accumulator struct {
	uid   UID
	state accState
	buf   bytes.Buffer
	flags []string
}

// applyResult reports what fetchJob.apply did with an event.
type applyResult int

const (
	applied applyResult = iota
	finalized
	droppedUnknown
	droppedDuplicate
	skippedEmpty
)

// fetchJob owns the accumulators of one in-flight fetch. It is written only
// by the goroutine that runs assemble.
type fetchJob struct {
	id   string
	accs map[UID]*accumulator

	// seen holds every UID that has been finalized, complete or not.
	// Events for a UID in seen are discarded.
	seen map[UID]struct{}
	done []RawMessage
}

func newFetchJob(id string, uids []UID) *fetchJob {
	j := &fetchJob{
		id:   id,
		accs: make(map[UID]*accumulator, len(uids)),
		seen: make(map[UID]struct{}, len(uids)),
	}
	for _, uid := range uids {
		j.accs[uid] = &accumulator{uid: uid}
	}
	return j
}

// apply folds one stream event into the job.
func (j *fetchJob) apply(ev Event) applyResult {
	acc, ok := j.accs[ev.UID]
	if !ok {
		return droppedUnknown
	}
	if _, dup := j.seen[ev.UID]; dup {
		return droppedDuplicate
	}

	switch ev.Kind {
	case EventAttributes:
		acc.flags = append(acc.flags[:0], ev.Flags...)
	case EventChunk:
		if len(ev.Chunk) == 0 {
			return applied
		}
		acc.buf.Write(ev.Chunk)
		acc.state = stateReceiving
	case EventEnd:
		return j.finalize(acc)
	}
	return applied
}

// finalize inserts acc into the seen set if absent. A UID without bytes is
// marked failed and left out of the result.
func (j *fetchJob) finalize(acc *accumulator) applyResult {
	if _, dup := j.seen[acc.uid]; dup {
		return droppedDuplicate
	}
	j.seen[acc.uid] = struct{}{}

	if acc.buf.Len() == 0 {
		acc.state = stateFailed
		return skippedEmpty
	}
	acc.state = stateComplete
	j.done = append(j.done, RawMessage{
		UID:   acc.uid,
		Raw:   acc.buf.Bytes(),
		Flags: acc.flags,
	})
	return finalized
}

// fail marks a completed UID as failed, e.g. after a parse fault.
func (j *fetchJob) fail(uid UID) {
	if acc, ok := j.accs[uid]; ok {
		acc.state = stateFailed
	}
}

// complete returns the messages that reached Complete, in completion order.
func (j *fetchJob) complete() []RawMessage {
	return j.done
}

// counts returns how many accumulators are in each state.
func (j *fetchJob) counts() map[accState]int {
	out := make(map[accState]int, 4)
	for _, acc := range j.accs {
		out[acc.state]++
	}
	return out
}

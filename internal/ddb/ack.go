package ddb

// ackState is shared by a root AckFunctor and every copy made from it
// (spec.md §4.3: "copies share the state but do not re-lock").
type ackState struct {
	db           *DDB
	change       *CacheChange
	pendingLeft  bool
	lockedByRoot bool
}

// AckFunctor is a stateful, copyable callable bound to one CacheChange. The
// transport invokes it once per ReaderProxy of the writer owning that
// change. Its copyable-value-wrapping-a-shared-pointer shape mirrors
// queueingGetServer's embed-and-delegate pattern in
// controller/api/destination/update_queue.go, adapted so that only the
// first ("root") instance acquires the DDB lock and every copy observes the
// same shared state (spec.md §4.3, §9).
type AckFunctor struct {
	state *ackState
}

// NewAckFunctor constructs the root functor for one CacheChange, acquiring
// the DDB lock for the duration of the whole per-proxy evaluation pass.
// Callers must call Finish when done iterating proxies.
func (d *DDB) NewAckFunctor(change *CacheChange) AckFunctor {
	d.mu.Lock()
	return AckFunctor{state: &ackState{db: d, change: change, lockedByRoot: true}}
}

// Finish releases the lock acquired by NewAckFunctor. Copies share the
// root's state, so Finish on any one of them unlocks; it must be called
// exactly once per NewAckFunctor, on the root or on a single copy.
func (f AckFunctor) Finish() {
	if f.state.lockedByRoot {
		f.state.db.mu.Unlock()
	}
}

// PendingAcksRemain reports whether any proxy this functor was invoked for
// had not yet acknowledged the change.
func (f AckFunctor) PendingAcksRemain() bool {
	return f.state.pendingLeft
}

// ProxyOutcome is what the transport reports for one ReaderProxy.
type ProxyOutcome int

const (
	ProxyIrrelevant ProxyOutcome = iota
	ProxyAcked
	ProxyPending
)

// Call applies the outcome for one ReaderProxy belonging to readerPrefix,
// implementing spec.md §4.3's three-way dispatch.
func (f AckFunctor) Call(readerPrefix GuidPrefix, outcome ProxyOutcome) {
	switch outcome {
	case ProxyIrrelevant:
		return
	case ProxyAcked:
		f.markAcked(readerPrefix)
	default:
		f.state.pendingLeft = true
	}
}

func (f AckFunctor) markAcked(readerPrefix GuidPrefix) {
	d := f.state.db
	change := f.state.change

	record, ok := d.recordForInstanceLocked(change.InstanceHandle)
	if !ok {
		return
	}
	if record.changeSlot == nil || *record.changeSlot == nil || (*record.changeSlot).SampleIdentity != change.SampleIdentity {
		// The record was already superseded; this ack is stale (spec.md §4.3).
		return
	}
	record.acks[readerPrefix] = RelevantAcked

	// A DISPOSING record (spec.md §4.5) is erased once every peer has acked.
	d.maybeEraseDisposedLocked(change.InstanceHandle)
}

// recordForInstanceLocked finds whichever record (participant, writer, or
// reader) owns instanceHandle. Must be called with d.mu held.
func (d *DDB) recordForInstanceLocked(instanceHandle Guid) (*recordView, bool) {
	switch ClassifyEntity(instanceHandle.Entity) {
	case ClassParticipant:
		p, ok := d.participants[instanceHandle.Prefix]
		if !ok {
			return nil, false
		}
		return &recordView{changeSlot: &p.Change, acks: p.Acks}, true
	case ClassWriter:
		w, ok := d.writers[instanceHandle]
		if !ok {
			return nil, false
		}
		return &recordView{changeSlot: &w.Change, acks: w.Acks}, true
	case ClassReader:
		r, ok := d.readers[instanceHandle]
		if !ok {
			return nil, false
		}
		return &recordView{changeSlot: &r.Change, acks: r.Acks}, true
	default:
		return nil, false
	}
}

// recordView is a uniform accessor over the three record kinds, letting
// shared routines (ack bookkeeping, change replacement) operate without a
// type switch at every call site. changeSlot points directly at the
// record's Change field so SetChange mutates the original record.
type recordView struct {
	changeSlot **CacheChange
	acks       AckMap
}

func (r *recordView) Change() *CacheChange     { return *r.changeSlot }
func (r *recordView) SetChange(c *CacheChange) { *r.changeSlot = c }
func (r *recordView) Acks() AckMap             { return r.acks }

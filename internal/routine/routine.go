package routine

import (
	"context"
	"time"

	logging "github.com/sirupsen/logrus"

	"github.com/meshdisco/discoveryd/internal/ddb"
)

// Routine drives spec.md §4.6's single-threaded iteration against a
// ddb.DDB and a Transport. It is grounded on
// controller/cmd/destination/main.go's goroutine-plus-context shutdown
// idiom, adapted from "run until signalled" to "run until ctx is
// cancelled, re-arming a timer between passes".
type Routine struct {
	db        *ddb.DDB
	transport Transport
	period    time.Duration
	pingEvery time.Duration

	wake chan struct{}
	log  *logging.Entry
}

// Option configures a Routine at construction time.
type Option func(*Routine)

// WithLogger overrides the default logrus.Entry.
func WithLogger(entry *logging.Entry) Option {
	return func(r *Routine) { r.log = entry }
}

// WithPingPeriod overrides the upstream re-send interval (defaults to the
// main iteration period).
func WithPingPeriod(d time.Duration) Option {
	return func(r *Routine) { r.pingEvery = d }
}

// New constructs a Routine. period is the idle re-arm interval of spec.md
// §4.6 step "re-arm the timer at the configured period".
func New(db *ddb.DDB, transport Transport, period time.Duration, opts ...Option) *Routine {
	r := &Routine{
		db:        db,
		transport: transport,
		period:    period,
		pingEvery: period,
		wake:      make(chan struct{}, 1),
		log:       logging.WithField("component", "server-routine"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wake schedules an immediate iteration, used by the inbound listener glue
// once it has pushed a new item onto a queue (spec.md §4.7 step 3: "wake the
// server routine").
func (r *Routine) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run executes the main loop until ctx is cancelled. It also starts the
// ping task (spec.md §4.6 last paragraph) as a second goroutine and waits
// for it to exit before returning.
func (r *Routine) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.runPing(ctx)
	}()

	timer := time.NewTimer(r.period)
	defer timer.Stop()

	for {
		pending := r.runIteration()

		if !r.db.DataQueueEmpty() {
			// More work already queued; loop again without waiting.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(0)
		} else if pending {
			timer.Reset(r.period)
		}
		// else: idle. Only Wake() or the timer (still armed from a prior
		// pending pass) will produce the next iteration.

		select {
		case <-ctx.Done():
			<-done
			return
		case <-timer.C:
		case <-r.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(0)
		}
	}
}

// runIteration executes one pass of spec.md §4.6 steps 1-6 and returns
// pending_ack() (step 7).
func (r *Routine) runIteration() bool {
	r.processAcks(r.transport.Pdp())
	r.processAcks(r.transport.EdpPub())
	r.processAcks(r.transport.EdpSub())

	r.db.ProcessPdpQueue()
	r.db.ProcessEdpQueue()

	r.db.ProcessDirtyTopics()

	r.processChangesRelease()
	r.processDisposals()
	r.processToSendLists()

	pdp := r.transport.Pdp().History().Entries()
	edpPub := r.transport.EdpPub().History().Entries()
	edpSub := r.transport.EdpSub().History().Entries()
	return r.db.PendingAck(len(pdp), len(edpPub), len(edpSub))
}

// processAcks implements spec.md §4.6 step 1: walk a builtin writer's
// history, invoking the ack functor once per change with every ReaderProxy
// outcome the transport currently reports.
func (r *Routine) processAcks(w Writer) {
	for _, change := range w.History().Entries() {
		outcomes := w.ReaderProxyOutcomes(change)
		if len(outcomes) == 0 {
			continue
		}
		functor := r.db.NewAckFunctor(change)
		for readerPrefix, outcome := range outcomes {
			functor.Call(readerPrefix, outcome)
		}
		functor.Finish()
	}
}

// processToSendLists implements spec.md §4.4.6 for all three send lists.
func (r *Routine) processToSendLists() {
	r.drainToHistory(r.db.PdpToSend(), r.transport.Pdp())
	r.db.ClearPdpToSend()

	r.drainToHistory(r.db.EdpPublicationsToSend(), r.transport.EdpPub())
	r.db.ClearEdpPublicationsToSend()

	r.drainToHistory(r.db.EdpSubscriptionsToSend(), r.transport.EdpSub())
	r.db.ClearEdpSubscriptionsToSend()
}

// drainToHistory is process_to_send_list(list, writer, history): for each
// change, replace any existing same-sample-identity entry without
// releasing it (the DDB still owns the pointer), rewrite writer_guid, and
// add it to the history.
func (r *Routine) drainToHistory(changes []*ddb.CacheChange, w Writer) {
	hist := w.History()
	for _, c := range changes {
		if existing := hist.FindBySampleIdentity(c.SampleIdentity); existing != nil {
			hist.Remove(existing)
		}
		c.WriterGuid = w.Guid()
		hist.Add(c)
	}
}

// processDisposals implements spec.md §4.4.6's disposal half: push each
// disposal into whichever builtin writer's history matches its instance
// handle's entity class.
func (r *Routine) processDisposals() {
	disposals := r.db.ChangesToDispose()
	for _, c := range disposals {
		w := r.writerFor(c.InstanceHandle)
		if w == nil {
			continue
		}
		r.drainToHistory([]*ddb.CacheChange{c}, w)
	}
	r.db.ClearChangesToDispose()
}

func (r *Routine) writerFor(instanceHandle ddb.Guid) Writer {
	switch ddb.ClassifyEntity(instanceHandle.Entity) {
	case ddb.ClassParticipant:
		return r.transport.Pdp()
	case ddb.ClassWriter:
		return r.transport.EdpPub()
	case ddb.ClassReader:
		return r.transport.EdpSub()
	default:
		return nil
	}
}

// processChangesRelease implements spec.md §4.4.7: for each released
// pointer, attempt best-effort removal from its originating writer's
// history if this server wrote it, then return it to the matching pool.
func (r *Routine) processChangesRelease() {
	released := r.db.ChangesToRelease()
	for _, c := range released {
		if c.WriterGuid.Prefix == r.db.ServerGuidPrefix {
			if w := r.writerFor(c.InstanceHandle); w != nil {
				w.History().Remove(c)
			}
			r.transport.WriterPool().Release(c)
		} else {
			r.transport.ReaderPool().Release(c)
		}
	}
	r.db.ClearChangesToRelease()
}

// runPing implements spec.md §4.6's second periodic task: re-send this
// server's own DATA(p) to upstream servers that have not yet acked it.
func (r *Routine) runPing(ctx context.Context) {
	ticker := time.NewTicker(r.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ping()
		}
	}
}

func (r *Routine) ping() {
	pending := r.db.AckPendingServers()
	if len(pending) == 0 {
		return
	}
	change := r.ownParticipantChange()
	if change == nil {
		return
	}
	for _, upstream := range pending {
		if err := r.transport.SendParticipantData(upstream, change); err != nil {
			r.log.WithError(err).WithField("upstream", upstream.String()).
				Warn("failed to re-send own DATA(p) to pending upstream server")
		}
	}
}

func (r *Routine) ownParticipantChange() *ddb.CacheChange {
	entries := r.transport.Pdp().History().Entries()
	for _, c := range entries {
		if c.InstanceHandle.Prefix == r.db.ServerGuidPrefix {
			return c
		}
	}
	return nil
}

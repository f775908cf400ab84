package routine

import (
	"testing"

	"github.com/meshdisco/discoveryd/internal/ddb"
)

// fakeHistory is a minimal in-memory History used only to exercise Routine's
// drain/release/disposal logic in isolation from any real transport.
type fakeHistory struct {
	entries []*ddb.CacheChange
}

func (h *fakeHistory) Entries() []*ddb.CacheChange {
	return append([]*ddb.CacheChange(nil), h.entries...)
}

func (h *fakeHistory) FindBySampleIdentity(id ddb.SampleIdentity) *ddb.CacheChange {
	for _, c := range h.entries {
		if c.SampleIdentity == id {
			return c
		}
	}
	return nil
}

func (h *fakeHistory) Add(c *ddb.CacheChange) { h.entries = append(h.entries, c) }

func (h *fakeHistory) Remove(c *ddb.CacheChange) bool {
	for i, e := range h.entries {
		if e == c {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return true
		}
	}
	return false
}

type fakeWriter struct {
	guid    ddb.Guid
	history *fakeHistory
	// outcomes, keyed by change, is consulted once per processAcks pass.
	outcomes map[*ddb.CacheChange]map[ddb.GuidPrefix]ddb.ProxyOutcome
}

func newFakeWriter(guid ddb.Guid) *fakeWriter {
	return &fakeWriter{
		guid:     guid,
		history:  &fakeHistory{},
		outcomes: map[*ddb.CacheChange]map[ddb.GuidPrefix]ddb.ProxyOutcome{},
	}
}

func (w *fakeWriter) Guid() ddb.Guid   { return w.guid }
func (w *fakeWriter) History() History { return w.history }
func (w *fakeWriter) ReaderProxyOutcomes(change *ddb.CacheChange) map[ddb.GuidPrefix]ddb.ProxyOutcome {
	return w.outcomes[change]
}

type fakePool struct {
	released []*ddb.CacheChange
}

func (p *fakePool) Release(c *ddb.CacheChange) { p.released = append(p.released, c) }

type fakeTransport struct {
	pdp, edpPub, edpSub *fakeWriter
	writerPool          *fakePool
	readerPool          *fakePool
	sent                map[ddb.GuidPrefix][]*ddb.CacheChange
}

func newFakeTransport(serverPrefix ddb.GuidPrefix) *fakeTransport {
	return &fakeTransport{
		pdp:        newFakeWriter(participantGuid(serverPrefix)),
		edpPub:     newFakeWriter(participantGuid(serverPrefix)),
		edpSub:     newFakeWriter(participantGuid(serverPrefix)),
		writerPool: &fakePool{},
		readerPool: &fakePool{},
		sent:       map[ddb.GuidPrefix][]*ddb.CacheChange{},
	}
}

func (t *fakeTransport) Pdp() Writer      { return t.pdp }
func (t *fakeTransport) EdpPub() Writer   { return t.edpPub }
func (t *fakeTransport) EdpSub() Writer   { return t.edpSub }
func (t *fakeTransport) WriterPool() Pool { return t.writerPool }
func (t *fakeTransport) ReaderPool() Pool { return t.readerPool }

func (t *fakeTransport) SendParticipantData(upstream ddb.GuidPrefix, change *ddb.CacheChange) error {
	t.sent[upstream] = append(t.sent[upstream], change)
	return nil
}

func participantGuid(prefix ddb.GuidPrefix) ddb.Guid {
	return ddb.Guid{Prefix: prefix, Entity: ddb.ParticipantEntityId}
}

func testPrefix(seed byte) ddb.GuidPrefix {
	var p ddb.GuidPrefix
	p[11] = seed
	return p
}

func TestRunIterationDrainsSendListsIntoHistory(t *testing.T) {
	s := testPrefix(1)
	db := ddb.New(s, nil)
	transport := newFakeTransport(s)
	r := New(db, transport, 0)

	sGuid := participantGuid(s)
	change := &ddb.CacheChange{
		WriterGuid:     sGuid,
		InstanceHandle: sGuid,
		Kind:           ddb.KindAlive,
		SampleIdentity: ddb.SampleIdentity{WriterGuid: sGuid, SequenceNumber: 1},
	}
	if err := db.UpdateParticipant(change, ddb.ParticipantChangeData{}); err != nil {
		t.Fatalf("UpdateParticipant: %v", err)
	}

	r.runIteration()

	if len(transport.pdp.history.entries) != 1 {
		t.Fatalf("pdp history has %d entries, want 1", len(transport.pdp.history.entries))
	}
	if transport.pdp.history.entries[0].WriterGuid != transport.pdp.Guid() {
		t.Fatal("drained change must have its writer_guid rewritten to the pdp writer's own Guid")
	}
	if len(db.PdpToSend()) != 0 {
		t.Fatal("pdp_to_send must be cleared after draining")
	}
}

func TestRunIterationRoutesDisposalsByEntityClass(t *testing.T) {
	s, c := testPrefix(1), testPrefix(2)
	db := ddb.New(s, nil)
	transport := newFakeTransport(s)
	r := New(db, transport, 0)

	sGuid := participantGuid(s)
	mustUpdate(t, db, &ddb.CacheChange{
		WriterGuid: sGuid, InstanceHandle: sGuid, Kind: ddb.KindAlive,
		SampleIdentity: ddb.SampleIdentity{WriterGuid: sGuid, SequenceNumber: 1},
	})
	cGuid := participantGuid(c)
	mustUpdate(t, db, &ddb.CacheChange{
		WriterGuid: cGuid, InstanceHandle: cGuid, Kind: ddb.KindAlive,
		SampleIdentity: ddb.SampleIdentity{WriterGuid: cGuid, SequenceNumber: 1},
	})
	r.runIteration()

	disposal := &ddb.CacheChange{
		WriterGuid: cGuid, InstanceHandle: cGuid, Kind: ddb.KindDisposed,
		SampleIdentity: ddb.SampleIdentity{WriterGuid: cGuid, SequenceNumber: 2},
	}
	mustUpdate(t, db, disposal)
	r.runIteration()

	found := false
	for _, e := range transport.pdp.history.entries {
		if e == disposal {
			found = true
		}
	}
	if !found {
		t.Fatal("a disposed participant's DATA(Up) must be routed into the pdp writer's history")
	}
}

func mustUpdate(t *testing.T, db *ddb.DDB, change *ddb.CacheChange) {
	t.Helper()
	if err := db.UpdateParticipant(change, ddb.ParticipantChangeData{}); err != nil {
		t.Fatalf("UpdateParticipant: %v", err)
	}
}

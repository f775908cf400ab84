package demotransport

import (
	"fmt"
	"sync"

	"github.com/meshdisco/discoveryd/internal/ddb"
	"github.com/meshdisco/discoveryd/internal/filteradapter"
	"github.com/meshdisco/discoveryd/internal/routine"
)

// Transport wires the three builtin writers and two pools a DDB's server
// routine and listener glue need, entirely in memory. It satisfies
// routine.Transport.
type Transport struct {
	pdp    *Writer
	edpPub *Writer
	edpSub *Writer

	writerPool *Pool
	readerPool *Pool

	// pdpReader, edpPubReader and edpSubReader are the builtin *readers*'
	// histories: where a peer's DATA(p)/DATA(w)/DATA(r) lands before
	// internal/listener drains it into the DDB. Distinct from pdp/edpPub/
	// edpSub above, which are the builtin *writers* this server sends from.
	pdpReader    *History
	edpPubReader *History
	edpSubReader *History

	mu   sync.Mutex
	sent map[ddb.GuidPrefix][]*ddb.CacheChange
}

// New constructs a Transport for db, filtering each builtin writer's
// ReaderProxyOutcomes through the matching filteradapter.Filter.
func New(db *ddb.DDB) *Transport {
	return &Transport{
		pdp:        NewWriter(ddb.Guid{Prefix: db.ServerGuidPrefix, Entity: ddb.ParticipantEntityId}, filteradapter.NewPdpFilter(db)),
		edpPub:     NewWriter(ddb.Guid{Prefix: db.ServerGuidPrefix, Entity: ddb.EntityId{0, 0, 1, 0x03}}, filteradapter.NewEdpPubFilter(db)),
		edpSub:     NewWriter(ddb.Guid{Prefix: db.ServerGuidPrefix, Entity: ddb.EntityId{0, 0, 1, 0x04}}, filteradapter.NewEdpSubFilter(db)),
		writerPool: NewPool(),
		readerPool: NewPool(),

		pdpReader:    NewHistory(),
		edpPubReader: NewHistory(),
		edpSubReader: NewHistory(),

		sent: map[ddb.GuidPrefix][]*ddb.CacheChange{},
	}
}

// PdpReader, EdpPubReader and EdpSubReader expose the inbound builtin
// readers' histories, the listener.ChangeSource that internal/listener
// drains.
func (t *Transport) PdpReader() *History    { return t.pdpReader }
func (t *Transport) EdpPubReader() *History { return t.edpPubReader }
func (t *Transport) EdpSubReader() *History { return t.edpSubReader }

// Pdp, EdpPub and EdpSub expose the three builtin writers.
func (t *Transport) Pdp() routine.Writer    { return t.pdp }
func (t *Transport) EdpPub() routine.Writer { return t.edpPub }
func (t *Transport) EdpSub() routine.Writer { return t.edpSub }

// PdpWriter, EdpPubWriter, EdpSubWriter expose the concrete Writers, for
// callers that need RegisterReaderProxy/SetProxyOutcome rather than the
// narrower routine.Writer interface.
func (t *Transport) PdpWriter() *Writer    { return t.pdp }
func (t *Transport) EdpPubWriter() *Writer { return t.edpPub }
func (t *Transport) EdpSubWriter() *Writer { return t.edpSub }

// WriterPool and ReaderPool expose the two change pools.
func (t *Transport) WriterPool() routine.Pool { return t.writerPool }
func (t *Transport) ReaderPool() routine.Pool { return t.readerPool }

// SendParticipantData implements the §4.6 ping task's re-send of this
// server's own DATA(p) to a pending upstream server. The demo transport has
// no real peer to fail against, so it only records the send; a test can
// inspect SentTo to assert on it.
func (t *Transport) SendParticipantData(upstream ddb.GuidPrefix, change *ddb.CacheChange) error {
	if upstream == (ddb.GuidPrefix{}) {
		return fmt.Errorf("demotransport: empty upstream prefix")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[upstream] = append(t.sent[upstream], change)
	return nil
}

// SentTo returns every change SendParticipantData has recorded for
// upstream, oldest first.
func (t *Transport) SentTo(upstream ddb.GuidPrefix) []*ddb.CacheChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*ddb.CacheChange, len(t.sent[upstream]))
	copy(out, t.sent[upstream])
	return out
}

// EraseParticipantProxy implements listener.ProxyEraser: a disposed
// participant's reader/writer proxies are dropped from every builtin
// writer's matched-proxy set.
func (t *Transport) EraseParticipantProxy(prefix ddb.GuidPrefix) {
	t.pdp.RemoveReaderProxy(prefix)
	t.edpPub.RemoveReaderProxy(prefix)
	t.edpSub.RemoveReaderProxy(prefix)
}

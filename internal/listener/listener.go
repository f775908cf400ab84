// Package listener implements the inbound glue of spec.md §4.7: converting
// CacheChanges sitting in a builtin reader's history into DDB updates, with
// correct ownership transfer and own-echo detection.
package listener

import (
	logging "github.com/sirupsen/logrus"

	"github.com/meshdisco/discoveryd/internal/ddb"
)

// ChangeSource is a builtin reader's history, the minimal stand-in spec.md
// §4.7 needs: enumerate what's arrived, and remove an entry once the DDB
// has taken ownership of it.
type ChangeSource interface {
	Entries() []*ddb.CacheChange
	// Remove deletes c from the history without releasing it back to any
	// pool — ownership has already moved to the DDB.
	Remove(c *ddb.CacheChange) bool
}

// Pool returns a change to the transport when the DDB rejects it.
type Pool interface {
	Release(c *ddb.CacheChange)
}

// ParticipantDecoder extracts the DDB-relevant fields out of a DATA(p)'s
// serialized payload — metatraffic locators and is_client/is_my_client
// classification — without the listener needing to know the wire format
// (spec.md §4.7 step 3).
type ParticipantDecoder interface {
	DecodeParticipant(payload []byte) (ddb.ParticipantChangeData, error)
}

// TopicResolver extracts the topic name out of a DATA(w|r)'s serialized
// payload (spec.md §4.7 step 5).
type TopicResolver interface {
	ResolveTopic(payload []byte) (string, error)
}

// ProxyEraser is called once a participant disposal has been accepted, so
// higher layers (outside the DDB's scope) can tear down its transport-level
// proxy (spec.md §4.7 step 4).
type ProxyEraser interface {
	EraseParticipantProxy(prefix ddb.GuidPrefix)
}

// Waker schedules an immediate server-routine pass; satisfied by
// *routine.Routine's Wake method. Declared as a narrow interface here to
// avoid an import of internal/routine.
type Waker interface {
	Wake()
}

// Listener serves every builtin reader (PDP, EDP publications, EDP
// subscriptions): DrainPdp and DrainEdp each pull arrived changes out of the
// ChangeSource they are given and feed them to the DDB.
type Listener struct {
	db          *ddb.DDB
	participant ParticipantDecoder
	topics      TopicResolver
	pool        Pool
	waker       Waker
	eraser      ProxyEraser
	log         *logging.Entry
}

// New constructs a Listener.
func New(db *ddb.DDB, participant ParticipantDecoder, topics TopicResolver, pool Pool, waker Waker, eraser ProxyEraser) *Listener {
	return &Listener{
		db:          db,
		participant: participant,
		topics:      topics,
		pool:        pool,
		waker:       waker,
		eraser:      eraser,
		log:         logging.WithField("component", "listener"),
	}
}

// DrainPdp implements spec.md §4.7 steps 1-4 for a PDP reader's history.
func (l *Listener) DrainPdp(source ChangeSource) {
	for _, change := range source.Entries() {
		l.handlePdpChange(source, change)
	}
}

func (l *Listener) handlePdpChange(source ChangeSource, change *ddb.CacheChange) {
	guid := change.InstanceHandle
	if (guid == ddb.Guid{}) {
		l.log.WithField("kind", change.Kind.String()).Warn("dropping DATA(p) with no instance handle")
		return
	}
	if (change.SampleIdentity == ddb.SampleIdentity{}) {
		l.log.Warn("dropping DATA(p) with no sample identity")
		return
	}

	if change.Kind == ddb.KindDisposed {
		if err := l.db.UpdateParticipant(change, ddb.ParticipantChangeData{}); err != nil {
			l.pool.Release(change)
			return
		}
		source.Remove(change)
		l.waker.Wake()
		if l.eraser != nil {
			l.eraser.EraseParticipantProxy(guid.Prefix)
		}
		return
	}

	if guid.Prefix == l.db.ServerGuidPrefix {
		// Own echo: this server's own DATA(p) relayed back by a peer.
		source.Remove(change)
		return
	}

	data, err := l.participant.DecodeParticipant(change.SerializedPayload)
	if err != nil {
		l.log.WithError(err).WithField("participant", guid.Prefix.String()).Warn("failed to decode DATA(p) payload")
		l.pool.Release(change)
		return
	}

	if err := l.db.UpdateParticipant(change, data); err != nil {
		l.pool.Release(change)
		return
	}
	source.Remove(change)
	l.waker.Wake()
}

// DrainEdp implements spec.md §4.7 step 5 for an EDP publications or
// subscriptions reader's history.
func (l *Listener) DrainEdp(source ChangeSource) {
	for _, change := range source.Entries() {
		l.handleEdpChange(source, change)
	}
}

func (l *Listener) handleEdpChange(source ChangeSource, change *ddb.CacheChange) {
	guid := change.InstanceHandle
	if (guid == ddb.Guid{}) {
		l.log.WithField("kind", change.Kind.String()).Warn("dropping DATA(w|r) with no instance handle")
		return
	}
	if (change.SampleIdentity == ddb.SampleIdentity{}) {
		l.log.Warn("dropping DATA(w|r) with no sample identity")
		return
	}
	if ddb.ClassifyEntity(guid.Entity) == ddb.ClassUnknown {
		l.log.WithField("instance_handle", guid.String()).Warn("dropping change with unrecognized entity kind")
		return
	}

	topic := ""
	if change.Kind == ddb.KindAlive {
		t, err := l.topics.ResolveTopic(change.SerializedPayload)
		if err != nil {
			l.log.WithError(err).WithField("instance_handle", guid.String()).Warn("failed to resolve topic for DATA(w|r) payload")
			l.pool.Release(change)
			return
		}
		topic = t
	}

	if err := l.db.UpdateEndpoint(change, topic); err != nil {
		l.pool.Release(change)
		return
	}
	source.Remove(change)
	l.waker.Wake()
}

package ddb

import (
	"sync"

	logging "github.com/sirupsen/logrus"
)

// orderedSet is an insertion-ordered set of Guids, used for writers_by_topic
// and readers_by_topic (spec.md §3) where iteration order should be stable
// across a reconciliation pass.
type orderedSet struct {
	order []Guid
	index map[Guid]int
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: map[Guid]int{}}
}

func (s *orderedSet) add(g Guid) {
	if _, ok := s.index[g]; ok {
		return
	}
	s.index[g] = len(s.order)
	s.order = append(s.order, g)
}

func (s *orderedSet) remove(g Guid) {
	i, ok := s.index[g]
	if !ok {
		return
	}
	delete(s.index, g)
	s.order = append(s.order[:i], s.order[i+1:]...)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
}

func (s *orderedSet) items() []Guid {
	out := make([]Guid, len(s.order))
	copy(out, s.order)
	return out
}

// changeSeq is an ordered, dedup-on-pointer sequence of CacheChange
// pointers, used for the three to-send lists and the disposal list
// (spec.md §3).
type changeSeq struct {
	items []*CacheChange
	seen  map[*CacheChange]struct{}
}

func newChangeSeq() *changeSeq {
	return &changeSeq{seen: map[*CacheChange]struct{}{}}
}

func (s *changeSeq) append(c *CacheChange) {
	if _, ok := s.seen[c]; ok {
		return
	}
	s.seen[c] = struct{}{}
	s.items = append(s.items, c)
}

func (s *changeSeq) clear() []*CacheChange {
	out := s.items
	s.items = nil
	s.seen = map[*CacheChange]struct{}{}
	return out
}

func (s *changeSeq) len() int {
	return len(s.items)
}

// DDB is the Discovery Database: the in-memory state of a Discovery Server
// plus the single-threaded reconciliation routines that operate on it
// (spec.md §2-§5).
//
// Every field below is protected by mu except the immutable configuration
// (ServerGuidPrefix, UpstreamServers) and the two inbound queues, which
// carry their own shorter-lived mutex (queue.go). UpdateParticipant and
// UpdateEndpoint still take mu to read the enable flag and hold it while
// they push, so a push waits for any routine phase that holds mu.
type DDB struct {
	mu sync.Mutex

	ServerGuidPrefix GuidPrefix
	UpstreamServers  []GuidPrefix

	enabled bool

	participants map[GuidPrefix]*ParticipantRecord
	writers      map[Guid]*EndpointRecord
	readers      map[Guid]*EndpointRecord

	writersByTopic map[string]*orderedSet
	readersByTopic map[string]*orderedSet

	dirtyTopics map[string]struct{}

	pdpToSend    *changeSeq
	edpPubToSend *changeSeq
	edpSubToSend *changeSeq
	disposals    *changeSeq

	changesToRelease []*CacheChange

	pdpQueue inboundQueue[pdpItem]
	edpQueue inboundQueue[edpItem]

	log     *logging.Entry
	metrics *Recorder
}

// Option configures a DDB at construction time.
type Option func(*DDB)

// WithLogger overrides the default logrus.Entry used for every log line the
// DDB emits. Mirrors the logger-injection pattern of
// watcher.NewEndpointsWatcherCache, which scopes a *logging.Entry with a
// "component" field rather than using the package-level logger directly.
func WithLogger(entry *logging.Entry) Option {
	return func(d *DDB) { d.log = entry }
}

// WithRecorder attaches a metrics Recorder. A DDB with no Recorder attached
// (the default) records nothing; see metrics.go.
func WithRecorder(r *Recorder) Option {
	return func(d *DDB) { d.metrics = r }
}

// New constructs an enabled DDB for the given server and its upstream
// servers (spec.md §5 "enable flag": disabled -> enabled at startup).
func New(serverPrefix GuidPrefix, upstream []GuidPrefix, opts ...Option) *DDB {
	d := &DDB{
		ServerGuidPrefix: serverPrefix,
		UpstreamServers:  append([]GuidPrefix(nil), upstream...),
		enabled:          true,

		participants: map[GuidPrefix]*ParticipantRecord{},
		writers:      map[Guid]*EndpointRecord{},
		readers:      map[Guid]*EndpointRecord{},

		writersByTopic: map[string]*orderedSet{},
		readersByTopic: map[string]*orderedSet{},

		dirtyTopics: map[string]struct{}{},

		pdpToSend:    newChangeSeq(),
		edpPubToSend: newChangeSeq(),
		edpSubToSend: newChangeSeq(),
		disposals:    newChangeSeq(),

		log: logging.WithField("component", "ddb"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enable and Disable implement spec.md §5's enable-flag lifecycle:
// "enabled -> disabled exactly once before destruction".
func (d *DDB) Enable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = true
}

func (d *DDB) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
}

func (d *DDB) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Clear returns every CacheChange pointer the DDB owns and empties all
// state. It is a no-op (and an error) while enabled (spec.md §5, §7
// CLEAR_WHILE_ENABLED); the disabled DDB still permits it.
func (d *DDB) Clear() ([]*CacheChange, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enabled {
		return nil, d.fail(ReasonClearWhileEnabled, nil, "clear() called while ddb is enabled")
	}

	var owned []*CacheChange
	for _, p := range d.participants {
		if p.Change != nil {
			owned = append(owned, p.Change)
		}
	}
	for _, w := range d.writers {
		if w.Change != nil {
			owned = append(owned, w.Change)
		}
	}
	for _, r := range d.readers {
		if r.Change != nil {
			owned = append(owned, r.Change)
		}
	}
	owned = append(owned, d.changesToRelease...)
	owned = append(owned, d.pdpToSend.clear()...)
	owned = append(owned, d.edpPubToSend.clear()...)
	owned = append(owned, d.edpSubToSend.clear()...)
	owned = append(owned, d.disposals.clear()...)

	d.participants = map[GuidPrefix]*ParticipantRecord{}
	d.writers = map[Guid]*EndpointRecord{}
	d.readers = map[Guid]*EndpointRecord{}
	d.writersByTopic = map[string]*orderedSet{}
	d.readersByTopic = map[string]*orderedSet{}
	d.dirtyTopics = map[string]struct{}{}
	d.changesToRelease = nil

	return owned, nil
}

// DataQueueEmpty reports whether both inbound queues are empty.
func (d *DDB) DataQueueEmpty() bool {
	return d.pdpQueue.empty() && d.edpQueue.empty()
}

// DirectClientsAndServers returns participants with IsMyClient || IsMyServer
// (spec.md §6).
func (d *DDB) DirectClientsAndServers() []GuidPrefix {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []GuidPrefix
	for prefix, p := range d.participants {
		if p.IsMyClient || p.IsMyServer {
			out = append(out, prefix)
		}
	}
	return out
}

// ParticipantMetatrafficLocators looks up the metatraffic locator list
// copied from a participant's DATA(p) (spec.md §6).
func (d *DDB) ParticipantMetatrafficLocators(prefix GuidPrefix) ([]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.participants[prefix]
	if !ok {
		return nil, false
	}
	return p.MetatrafficLocators, true
}

// PdpToSend, EdpPublicationsToSend, EdpSubscriptionsToSend read the send
// lists (spec.md §6); ClearPdpToSend and friends clear them.
func (d *DDB) PdpToSend() []*CacheChange              { return d.readList(d.pdpToSend) }
func (d *DDB) EdpPublicationsToSend() []*CacheChange  { return d.readList(d.edpPubToSend) }
func (d *DDB) EdpSubscriptionsToSend() []*CacheChange { return d.readList(d.edpSubToSend) }

func (d *DDB) readList(s *changeSeq) []*CacheChange {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*CacheChange, len(s.items))
	copy(out, s.items)
	return out
}

func (d *DDB) ClearPdpToSend()              { d.clearList(d.pdpToSend) }
func (d *DDB) ClearEdpPublicationsToSend()  { d.clearList(d.edpPubToSend) }
func (d *DDB) ClearEdpSubscriptionsToSend() { d.clearList(d.edpSubToSend) }

func (d *DDB) clearList(s *changeSeq) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s.clear()
}

// ChangesToDispose and ClearChangesToDispose expose the disposal list.
func (d *DDB) ChangesToDispose() []*CacheChange {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*CacheChange, len(d.disposals.items))
	copy(out, d.disposals.items)
	return out
}

func (d *DDB) ClearChangesToDispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disposals.clear()
}

// releaseChangeLocked queues c for return to the transport's pool and
// records the ddb_changes_released_total metric (SPEC_FULL.md §4.10). Every
// site that drops a CacheChange into changesToRelease goes through here so
// the counter reflects every release path: superseded updates, orphan
// rejects, disposal erasure, and forced deletion via DeleteEntityOfChange.
func (d *DDB) releaseChangeLocked(c *CacheChange) {
	if c == nil {
		return
	}
	d.changesToRelease = append(d.changesToRelease, c)
	d.metrics.changeReleased()
}

// ChangesToRelease and ClearChangesToRelease expose the release list.
func (d *DDB) ChangesToRelease() []*CacheChange {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*CacheChange, len(d.changesToRelease))
	copy(out, d.changesToRelease)
	return out
}

func (d *DDB) ClearChangesToRelease() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changesToRelease = nil
}

// Package routine implements the server routine of spec.md §4.6: the single
// thread that drives ack processing, queue drains, dirty-topic
// reconciliation, release, disposal and send-list propagation against a
// ddb.DDB, plus the upstream "ping" task of §4.6's last paragraph.
package routine

import "github.com/meshdisco/discoveryd/internal/ddb"

// History is the builtin-writer history handle spec.md §4.4.6/§4.4.7 operate
// on: process_to_send_list and process_disposals need to find-and-replace by
// sample identity, process_changes_release needs best-effort removal.
type History interface {
	Entries() []*ddb.CacheChange
	FindBySampleIdentity(id ddb.SampleIdentity) *ddb.CacheChange
	// Add inserts c into the history. The caller has already rewritten
	// c.WriterGuid to the owning writer's Guid.
	Add(c *ddb.CacheChange)
	// Remove deletes c from the history without releasing it: ownership
	// stays with whoever called Remove (spec.md §4.4.6/§4.4.7).
	Remove(c *ddb.CacheChange) bool
}

// Writer is one of the three builtin writers (PDP, EDP publications, EDP
// subscriptions) the server routine drains into.
type Writer interface {
	Guid() ddb.Guid
	History() History
	// ReaderProxyOutcomes reports, for one change in this writer's history,
	// the ack state of every ReaderProxy the transport is tracking for it —
	// the input to the ack functor's per-proxy Call (spec.md §4.6 step 1).
	ReaderProxyOutcomes(change *ddb.CacheChange) map[ddb.GuidPrefix]ddb.ProxyOutcome
}

// Pool releases a CacheChange pointer back to the transport once the DDB no
// longer owns it (spec.md §4.4.7, §5's CacheChange pool).
type Pool interface {
	Release(c *ddb.CacheChange)
}

// Sender delivers this server's own DATA(p) to one specific upstream
// server, used by the ping task (spec.md §4.6 last paragraph).
type Sender interface {
	SendParticipantData(upstream ddb.GuidPrefix, change *ddb.CacheChange) error
}

// Transport bundles every collaborator the server routine needs. A real
// RTPS stack provides one; internal/demotransport provides an in-memory
// stand-in for tests and the demo binary.
type Transport interface {
	Pdp() Writer
	EdpPub() Writer
	EdpSub() Writer
	WriterPool() Pool
	ReaderPool() Pool
	Sender
}

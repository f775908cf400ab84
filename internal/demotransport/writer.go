package demotransport

import (
	"sync"

	"github.com/meshdisco/discoveryd/internal/ddb"
	"github.com/meshdisco/discoveryd/internal/filteradapter"
	"github.com/meshdisco/discoveryd/internal/routine"
)

// Writer is one builtin endpoint (PDP, EDP publications or EDP
// subscriptions): a History plus the set of reader proxies a real
// transport would be matching changes against. ReaderProxyOutcomes
// consults an injected filteradapter.Filter exactly the way a real
// transport's per-writer filter would, then reports every relevant proxy
// as acked unless a test has pinned it pending via SetProxyOutcome — there
// is no wire round trip here to make acks naturally lag.
type Writer struct {
	guid   ddb.Guid
	hist   *History
	filter filteradapter.Filter

	mu       sync.Mutex
	proxies  map[ddb.GuidPrefix]ddb.Guid
	override map[ddb.GuidPrefix]ddb.ProxyOutcome
}

// NewWriter constructs a Writer for guid, filtering relevance through filter.
func NewWriter(guid ddb.Guid, filter filteradapter.Filter) *Writer {
	return &Writer{
		guid:     guid,
		hist:     NewHistory(),
		filter:   filter,
		proxies:  map[ddb.GuidPrefix]ddb.Guid{},
		override: map[ddb.GuidPrefix]ddb.ProxyOutcome{},
	}
}

// Guid returns the writer's own Guid.
func (w *Writer) Guid() ddb.Guid { return w.guid }

// History returns the writer's backing History.
func (w *Writer) History() routine.History { return w.hist }

// Hist returns the concrete History, for callers (the demo entrypoint,
// tests) that need Add/FindBySampleIdentity directly rather than through
// the routine.History interface.
func (w *Writer) Hist() *History { return w.hist }

// RegisterReaderProxy adds readerGuid as a known matched reader, the demo
// stand-in for RTPS discovery having matched a remote reader to this
// writer.
func (w *Writer) RegisterReaderProxy(readerGuid ddb.Guid) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.proxies[readerGuid.Prefix] = readerGuid
}

// RemoveReaderProxy drops every reader proxy belonging to prefix, used when
// a participant is disposed (spec.md §4.7 step 4's proxy teardown).
func (w *Writer) RemoveReaderProxy(prefix ddb.GuidPrefix) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.proxies, prefix)
	delete(w.override, prefix)
}

// SetProxyOutcome pins the outcome reported for readerPrefix on every
// subsequent ReaderProxyOutcomes call, letting a test hold a proxy pending
// instead of the default immediate ack.
func (w *Writer) SetProxyOutcome(readerPrefix ddb.GuidPrefix, outcome ddb.ProxyOutcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.override[readerPrefix] = outcome
}

// ReaderProxyOutcomes implements routine.Writer: for each registered reader
// proxy, report ProxyIrrelevant if the filter says so, else the pinned
// override if one was set, else ProxyAcked.
func (w *Writer) ReaderProxyOutcomes(change *ddb.CacheChange) map[ddb.GuidPrefix]ddb.ProxyOutcome {
	w.mu.Lock()
	proxies := make(map[ddb.GuidPrefix]ddb.Guid, len(w.proxies))
	for prefix, guid := range w.proxies {
		proxies[prefix] = guid
	}
	override := make(map[ddb.GuidPrefix]ddb.ProxyOutcome, len(w.override))
	for prefix, outcome := range w.override {
		override[prefix] = outcome
	}
	w.mu.Unlock()

	out := make(map[ddb.GuidPrefix]ddb.ProxyOutcome, len(proxies))
	for prefix, readerGuid := range proxies {
		if !w.filter.IsRelevant(change, readerGuid) {
			out[prefix] = ddb.ProxyIrrelevant
			continue
		}
		if outcome, ok := override[prefix]; ok {
			out[prefix] = outcome
			continue
		}
		out[prefix] = ddb.ProxyAcked
	}
	return out
}

package ddb

// PdpIsRelevant, EdpPubIsRelevant and EdpSubIsRelevant implement the three
// relevance predicates of spec.md §4.2. They are exposed as separate
// callables (rather than one predicate parameterized by writer kind) so the
// outbound filter adapter (internal/filteradapter) can bind one per
// PDP/EDP-pub/EDP-sub writer, per spec.md §9's "Filter adapter" note.
//
// Relevance queries take the same mutex as mutation rather than a true
// shared/reader lock: Go's sync.Mutex has no RLock mode, and promoting this
// one field to sync.RWMutex for a query that is itself O(1) map lookups
// buys nothing. SPEC_FULL.md §5 records this as the accepted rewrite of the
// source's reentrant-lock design.
func (d *DDB) PdpIsRelevant(change *CacheChange, readerGuid Guid) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ownSelfOrigin(change, readerGuid) {
		return true
	}

	p, ok := d.participants[change.InstanceHandle.Prefix]
	if !ok {
		return false
	}
	status, tracked := p.Acks[readerGuid.Prefix]
	return tracked && status == RelevantUnacked
}

func (d *DDB) EdpPubIsRelevant(change *CacheChange, readerGuid Guid) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ownSelfOrigin(change, readerGuid) {
		return true
	}

	w, ok := d.writers[change.InstanceHandle]
	if !ok {
		return false
	}
	if !d.hostMatchedLocked(change.InstanceHandle.Prefix, readerGuid.Prefix) {
		return false
	}
	return w.Acks[readerGuid.Prefix] == RelevantUnacked
}

func (d *DDB) EdpSubIsRelevant(change *CacheChange, readerGuid Guid) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ownSelfOrigin(change, readerGuid) {
		return true
	}

	r, ok := d.readers[change.InstanceHandle]
	if !ok {
		return false
	}
	if !d.hostMatchedLocked(change.InstanceHandle.Prefix, readerGuid.Prefix) {
		return false
	}
	return r.Acks[readerGuid.Prefix] == RelevantUnacked
}

// ownSelfOrigin implements "change originates from this server's own
// GuidPrefix and target is a PDP reader → relevant" (spec.md §4.2): this
// server's own DATA(p) is always forwarded, since every peer must learn
// about this server regardless of ack state.
func (d *DDB) ownSelfOrigin(change *CacheChange, readerGuid Guid) bool {
	return change.InstanceHandle.Prefix == d.ServerGuidPrefix && ClassifyEntity(readerGuid.Entity) == ClassParticipant
}

// hostMatchedLocked reports whether the participant owning an endpoint has
// already matched readerPrefix's host over PDP — the gate that prevents an
// EDP announcement outrunning the PDP announcement for its own host
// (spec.md §4.2, §4.4.5).
func (d *DDB) hostMatchedLocked(ownerPrefix, readerPrefix GuidPrefix) bool {
	owner, ok := d.participants[ownerPrefix]
	if !ok {
		return false
	}
	return owner.Acks[readerPrefix].Matched()
}

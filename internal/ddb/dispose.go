package ddb

// updateChangeAndUnmatchLocked implements spec.md §4.4.4's
// update_change_and_unmatch, shared by participant and endpoint updates
// (§4.4.2, §4.4.3) and by disposal (below): the record's previous change is
// queued for release, its ack map is reset to all-unacked except for the
// two permanently-suppressed entries, and the new change is installed.
func (d *DDB) updateChangeAndUnmatchLocked(record *recordView, newChange *CacheChange) {
	d.releaseChangeLocked(record.Change())
	record.Acks().ResetUnacked()
	record.Acks()[d.ServerGuidPrefix] = RelevantAcked
	record.Acks()[newChange.WriterGuid.Prefix] = RelevantAcked
	record.SetChange(newChange)
}

// processDisposeParticipantLocked implements spec.md §4.4.4's participant
// disposal and the DISPOSING half of §4.5's record state machine: the
// participant record is not erased immediately. It is replaced with the
// disposal change and its ack map reset to unacked, so the disposal itself
// is tracked for acking like any other PDP change; it is only erased once
// every remaining peer has acked it (maybeEraseDisposedLocked, invoked here
// for the zero-peer case and from the ack functor as further acks land).
// Child writers and readers, by contrast, are erased immediately: the
// DATA(Up) subsumes them and no separate DATA(Uw|Ur) is ever sent.
func (d *DDB) processDisposeParticipantLocked(change *CacheChange) {
	prefix := change.InstanceHandle.Prefix
	p, ok := d.participants[prefix]
	if !ok {
		d.releaseChangeLocked(change)
		return
	}

	view := &recordView{changeSlot: &p.Change, acks: p.Acks}
	d.updateChangeAndUnmatchLocked(view, change)

	for guid := range p.Writers {
		d.eraseChildEndpointLocked(true, guid)
	}
	for guid := range p.Readers {
		d.eraseChildEndpointLocked(false, guid)
	}
	p.Writers = map[Guid]struct{}{}
	p.Readers = map[Guid]struct{}{}

	d.unmatchPrefixLocked(prefix)
	d.disposals.append(change)
	d.metrics.disposalForwarded()

	d.maybeEraseDisposedParticipantLocked(prefix)
}

// processDisposeWriterLocked and processDisposeReaderLocked implement
// spec.md §4.4.4's endpoint disposal for an externally-announced DISPOSE.
// Like participant disposal, the record enters DISPOSING rather than being
// erased outright: it is removed from the topic map (so reconciliation
// stops matching it against new peers) but kept, with its ack map reset to
// unacked, until every remaining peer acks the disposal.
func (d *DDB) processDisposeWriterLocked(change *CacheChange) {
	d.disposeAnnouncedEndpointLocked(true, change)
}

func (d *DDB) processDisposeReaderLocked(change *CacheChange) {
	d.disposeAnnouncedEndpointLocked(false, change)
}

func (d *DDB) disposeAnnouncedEndpointLocked(isWriter bool, change *CacheChange) {
	guid := change.InstanceHandle
	byGuid, byTopic := d.endpointMapsLocked(isWriter)
	record, ok := byGuid[guid]
	if !ok {
		d.releaseChangeLocked(change)
		return
	}

	view := &recordView{changeSlot: &record.Change, acks: record.Acks}
	d.updateChangeAndUnmatchLocked(view, change)
	d.removeFromTopicMapLocked(byTopic, guid, record)

	d.disposals.append(change)
	d.metrics.disposalForwarded()

	d.maybeEraseDisposedEndpointLocked(isWriter, guid)
}

// eraseChildEndpointLocked implements §4.4.4 step 2: a child of a disposed
// participant is released outright, with no DATA(Uw|Ur) of its own.
func (d *DDB) eraseChildEndpointLocked(isWriter bool, guid Guid) {
	byGuid, byTopic := d.endpointMapsLocked(isWriter)
	record, ok := byGuid[guid]
	if !ok {
		return
	}
	d.removeFromTopicMapLocked(byTopic, guid, record)
	d.releaseChangeLocked(record.Change)
	delete(byGuid, guid)
}

// removeFromTopicMapLocked removes guid from every topic bucket it could
// appear in: its own, or every real bucket if it was a virtual endpoint
// pulled into each one (spec.md §4.4.3).
func (d *DDB) removeFromTopicMapLocked(byTopic map[string]*orderedSet, guid Guid, record *EndpointRecord) {
	if record.IsVirtual {
		for _, set := range byTopic {
			set.remove(guid)
		}
		return
	}
	if set, ok := byTopic[record.Topic]; ok {
		set.remove(guid)
	}
}

// unmatchPrefixLocked removes prefix from every remaining record's ack map
// (spec.md §4.4.4 step 3: "remove from every other participant's ack map").
// Endpoint ack maps are cleaned up too, since a disposed participant's
// prefix can no longer be a meaningful ack target for any record.
func (d *DDB) unmatchPrefixLocked(prefix GuidPrefix) {
	for _, p := range d.participants {
		delete(p.Acks, prefix)
	}
	for _, w := range d.writers {
		delete(w.Acks, prefix)
	}
	for _, r := range d.readers {
		delete(r.Acks, prefix)
	}
}

// maybeEraseDisposedLocked completes §4.5's DISPOSING -> erased transition
// for whichever record owns instanceHandle, once every peer has acked.
// Called both right after a dispose (for the zero-peer case, where the ack
// map is vacuously all-matched) and from the ack functor as further acks
// land (ack.go).
func (d *DDB) maybeEraseDisposedLocked(instanceHandle Guid) {
	switch ClassifyEntity(instanceHandle.Entity) {
	case ClassParticipant:
		d.maybeEraseDisposedParticipantLocked(instanceHandle.Prefix)
	case ClassWriter:
		d.maybeEraseDisposedEndpointLocked(true, instanceHandle)
	case ClassReader:
		d.maybeEraseDisposedEndpointLocked(false, instanceHandle)
	}
}

func (d *DDB) maybeEraseDisposedParticipantLocked(prefix GuidPrefix) {
	p, ok := d.participants[prefix]
	if !ok || p.Change == nil || p.Change.Kind != KindDisposed || !p.Acks.AllMatched() {
		return
	}
	d.releaseChangeLocked(p.Change)
	delete(d.participants, prefix)
}

func (d *DDB) maybeEraseDisposedEndpointLocked(isWriter bool, guid Guid) {
	byGuid, _ := d.endpointMapsLocked(isWriter)
	record, ok := byGuid[guid]
	if !ok || record.Change == nil || record.Change.Kind != KindDisposed || !record.Acks.AllMatched() {
		return
	}
	d.releaseChangeLocked(record.Change)
	delete(byGuid, guid)
	if parent, ok := d.participants[guid.Prefix]; ok {
		if isWriter {
			delete(parent.Writers, guid)
		} else {
			delete(parent.Readers, guid)
		}
	}
}

// DeleteEntityOfChange implements spec.md §6's delete_entity_of_change: a
// transport that has independently confirmed a disposal is acked by every
// reader proxy (the way the original's StatefulWriter::is_acked_by_all does
// before calling the original) hands the disposed change back here to erase
// the orphaned participant/writer/reader record it names and release its
// current change. It returns false for anything but a disposed change, or
// when no record matches the change's instance handle.
func (d *DDB) DeleteEntityOfChange(change *CacheChange) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if change.Kind != KindDisposed {
		d.fail(ReasonBadKind, logFields(change), "delete_entity_of_change on a non-disposed change")
		return false
	}

	handle := change.InstanceHandle
	switch ClassifyEntity(handle.Entity) {
	case ClassParticipant:
		return d.deleteParticipantEntityLocked(handle.Prefix)
	case ClassWriter:
		return d.deleteEndpointEntityLocked(true, handle)
	case ClassReader:
		return d.deleteEndpointEntityLocked(false, handle)
	default:
		d.fail(ReasonBadKind, logFields(change), "delete_entity_of_change on an unclassifiable instance handle")
		return false
	}
}

func (d *DDB) deleteParticipantEntityLocked(prefix GuidPrefix) bool {
	p, ok := d.participants[prefix]
	if !ok {
		return false
	}
	d.releaseChangeLocked(p.Change)
	delete(d.participants, prefix)
	return true
}

func (d *DDB) deleteEndpointEntityLocked(isWriter bool, guid Guid) bool {
	byGuid, byTopic := d.endpointMapsLocked(isWriter)
	record, ok := byGuid[guid]
	if !ok {
		return false
	}
	d.removeFromTopicMapLocked(byTopic, guid, record)
	if parent, ok := d.participants[guid.Prefix]; ok {
		if isWriter {
			delete(parent.Writers, guid)
		} else {
			delete(parent.Readers, guid)
		}
	}
	d.releaseChangeLocked(record.Change)
	delete(byGuid, guid)
	return true
}

// markTopicDirtyLocked adds topic to the dirty set reconciled by
// ProcessDirtyTopics (spec.md §4.4.5). The virtual topic itself is never
// marked dirty: it has no send lists of its own, only the real topics it
// was pulled into.
func (d *DDB) markTopicDirtyLocked(topic string) {
	if topic == "" || topic == VirtualTopicName {
		return
	}
	d.dirtyTopics[topic] = struct{}{}
	d.metrics.observeDirtyTopics(len(d.dirtyTopics))
}

package ddb

// UpdateParticipant is the PDP variant of spec.md §4.1's `update` operation.
// On success ownership of change transfers to the DDB; on failure the
// caller keeps ownership.
func (d *DDB) UpdateParticipant(change *CacheChange, data ParticipantChangeData) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return d.fail(ReasonDisabled, logFields(change), "update(pdp) while disabled")
	}
	if ClassifyEntity(change.InstanceHandle.Entity) != ClassParticipant {
		return d.fail(ReasonBadKind, logFields(change), "pdp update with non-participant instance handle")
	}

	d.pdpQueue.push(pdpItem{change: change, data: data})
	d.metrics.observeQueues(d.pdpQueue.len(), d.edpQueue.len())
	return nil
}

// UpdateEndpoint is the EDP variant of spec.md §4.1's `update` operation.
func (d *DDB) UpdateEndpoint(change *CacheChange, topic string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return d.fail(ReasonDisabled, logFields(change), "update(edp) while disabled")
	}
	class := ClassifyEntity(change.InstanceHandle.Entity)
	if class != ClassWriter && class != ClassReader {
		return d.fail(ReasonBadKind, logFields(change), "edp update with non-endpoint instance handle")
	}

	d.edpQueue.push(edpItem{change: change, topic: topic})
	d.metrics.observeQueues(d.pdpQueue.len(), d.edpQueue.len())
	return nil
}

func logFields(change *CacheChange) map[string]any {
	return map[string]any{
		"instance_handle": change.InstanceHandle.String(),
		"writer_guid":     change.WriterGuid.String(),
		"kind":            change.Kind.String(),
	}
}

// ProcessPdpQueue drains the PDP inbound queue, dispatching each item to
// create/update or dispose (spec.md §4.4.1). Callers must hold no lock;
// ProcessPdpQueue acquires the DDB lock for its whole duration, per the
// server-routine phase ordering of spec.md §4.6.
func (d *DDB) ProcessPdpQueue() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, item := range d.pdpQueue.swap() {
		switch item.change.Kind {
		case KindAlive:
			d.createOrUpdateParticipantLocked(item.change, item.data)
		case KindDisposed:
			d.processDisposeParticipantLocked(item.change)
		}
	}
}

// ProcessEdpQueue drains the EDP inbound queue, classifying each item by
// EntityId and dispatching to the writer or reader variant (spec.md
// §4.4.1).
func (d *DDB) ProcessEdpQueue() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, item := range d.edpQueue.swap() {
		isWriter := ClassifyEntity(item.change.InstanceHandle.Entity) == ClassWriter
		switch item.change.Kind {
		case KindAlive:
			d.createOrUpdateEndpointLocked(isWriter, item.change, item.topic)
		case KindDisposed:
			if isWriter {
				d.processDisposeWriterLocked(item.change)
			} else {
				d.processDisposeReaderLocked(item.change)
			}
		}
	}
}

// createOrUpdateParticipantLocked implements spec.md §4.4.2.
func (d *DDB) createOrUpdateParticipantLocked(change *CacheChange, data ParticipantChangeData) {
	prefix := change.InstanceHandle.Prefix

	record, exists := d.participants[prefix]
	if !exists {
		isLocalServer := prefix == d.ServerGuidPrefix
		record = newParticipantRecord(change, data, isLocalServer)
		d.participants[prefix] = record

		// Backpropagation suppression (spec.md §3 invariant 3): the
		// originator and this server are never owed a re-send of what they
		// just told us.
		record.Acks[change.WriterGuid.Prefix] = RelevantAcked
		record.Acks[d.ServerGuidPrefix] = RelevantAcked

		if isLocalServer {
			d.pdpToSend.append(change)
			d.materializeVirtualEndpointsLocked(prefix)
		} else {
			// Every configured upstream server is owed a relay of this
			// participant's DATA(p), whether or not we've learned its own
			// DATA(p) yet (spec.md §8 S1).
			for _, upstream := range d.UpstreamServers {
				if _, tracked := record.Acks[upstream]; !tracked {
					record.Acks[upstream] = RelevantUnacked
				}
			}
			if own, ok := d.participants[d.ServerGuidPrefix]; ok {
				// This server's own DATA(p) is not yet known to be acked by
				// the newly discovered peer; track it so ServerAckedByAll
				// (§4.4.8, invariant 5) reflects that until the peer acks.
				if _, tracked := own.Acks[prefix]; !tracked {
					own.Acks[prefix] = RelevantUnacked
				}
			}
		}
		return
	}

	if change.SampleIdentity.SequenceNumber <= record.Change.SampleIdentity.SequenceNumber {
		d.releaseChangeLocked(change)
		d.fail(ReasonSuperseded, logFields(change), "superseded participant update dropped")
		return
	}

	view := &recordView{changeSlot: &record.Change, acks: record.Acks}
	d.updateChangeAndUnmatchLocked(view, change)
	record.MetatrafficLocators = data.MetatrafficLocators
	record.IsClient = data.IsClient
	record.IsMyClient = data.IsMyClient
	record.IsMyServer = data.IsMyServer
}

// materializeVirtualEndpointsLocked implements the last paragraph of
// spec.md §4.4.2: a local server gets a virtual writer and reader so
// per-topic reconciliation always considers a path toward it. The virtual
// CacheChanges are opaque markers (spec.md §9 Open Question) and are never
// placed on a send list; see DESIGN.md's Open Question decision.
func (d *DDB) materializeVirtualEndpointsLocked(prefix GuidPrefix) {
	writerGuid := Guid{Prefix: prefix, Entity: VirtualWriterEntityId}
	readerGuid := Guid{Prefix: prefix, Entity: VirtualReaderEntityId}

	writerChange := &CacheChange{
		WriterGuid:     writerGuid,
		InstanceHandle: writerGuid,
		Kind:           KindAlive,
		SampleIdentity: SampleIdentity{WriterGuid: writerGuid, SequenceNumber: 1},
	}
	readerChange := &CacheChange{
		WriterGuid:     writerGuid,
		InstanceHandle: readerGuid,
		Kind:           KindAlive,
		SampleIdentity: SampleIdentity{WriterGuid: writerGuid, SequenceNumber: 1},
	}

	d.createOrUpdateEndpointLocked(true, writerChange, VirtualTopicName)
	d.createOrUpdateEndpointLocked(false, readerChange, VirtualTopicName)
}

// createOrUpdateEndpointLocked implements spec.md §4.4.3 ("create
// endpoint"), shared between writer and reader insertion.
func (d *DDB) createOrUpdateEndpointLocked(isWriter bool, change *CacheChange, topic string) {
	guid := change.InstanceHandle
	byGuid, byTopic := d.endpointMapsLocked(isWriter)

	if existing, ok := byGuid[guid]; ok {
		if change.SampleIdentity.SequenceNumber <= existing.Change.SampleIdentity.SequenceNumber {
			d.releaseChangeLocked(change)
			d.fail(ReasonSuperseded, logFields(change), "superseded endpoint update dropped")
			return
		}
		view := &recordView{changeSlot: &existing.Change, acks: existing.Acks}
		d.updateChangeAndUnmatchLocked(view, change)
		d.markTopicDirtyLocked(existing.Topic)
		return
	}

	parent, ok := d.participants[guid.Prefix]
	if !ok {
		d.releaseChangeLocked(change)
		d.fail(ReasonOrphanEndpoint, logFields(change), "endpoint announced before its participant")
		return
	}

	isVirtual := topic == VirtualTopicName
	record := newEndpointRecord(change, topic, isVirtual)
	record.Acks[change.WriterGuid.Prefix] = RelevantAcked
	record.Acks[d.ServerGuidPrefix] = RelevantAcked
	byGuid[guid] = record

	if isWriter {
		parent.Writers[guid] = struct{}{}
	} else {
		parent.Readers[guid] = struct{}{}
	}

	d.matchNewEndpointLocked(guid, record, parent, isWriter)
	d.insertIntoTopicMapLocked(byTopic, guid, topic, isVirtual, isWriter)
	d.markTopicDirtyLocked(topic)
}

func (d *DDB) endpointMapsLocked(isWriter bool) (map[Guid]*EndpointRecord, map[string]*orderedSet) {
	if isWriter {
		return d.writers, d.writersByTopic
	}
	return d.readers, d.readersByTopic
}

// matchNewEndpointLocked walks the opposite-direction topic map and applies
// the three matching cases of spec.md §4.4.3.
func (d *DDB) matchNewEndpointLocked(guid Guid, record *EndpointRecord, parent *ParticipantRecord, isWriter bool) {
	_, oppositeByTopic := d.endpointMapsLocked(!isWriter)
	oppositeSet, ok := oppositeByTopic[record.Topic]
	if !ok {
		return
	}
	oppositeByGuid, _ := d.endpointMapsLocked(!isWriter)
	for _, peerGuid := range oppositeSet.items() {
		peerRecord, ok := oppositeByGuid[peerGuid]
		if !ok {
			continue
		}
		peerParent, ok := d.participants[peerGuid.Prefix]
		if !ok {
			continue
		}
		d.matchPairLocked(guid, parent, record, peerGuid, peerParent, peerRecord)
	}
}

// matchPairLocked implements the three cases of spec.md §4.4.3. a is always
// the newly inserted endpoint; b is an already-present peer from the
// opposite-direction topic bucket.
func (d *DDB) matchPairLocked(aGuid Guid, aParent *ParticipantRecord, aRecord *EndpointRecord, bGuid Guid, bParent *ParticipantRecord, bRecord *EndpointRecord) {
	switch {
	case aRecord.IsVirtual && !bRecord.IsVirtual:
		setUnackedUnlessMatched(bParent.Acks, aGuid.Prefix)
		setUnackedUnlessMatched(bRecord.Acks, aGuid.Prefix)
		d.markTopicDirtyLocked(bRecord.Topic)

	case aParent.IsMyClient && (bParent.IsMyClient || bParent.IsLocalServer) && !bRecord.IsVirtual:
		setUnackedUnlessMatched(aParent.Acks, bGuid.Prefix)
		setUnackedUnlessMatched(bParent.Acks, aGuid.Prefix)
		setUnackedUnlessMatched(aRecord.Acks, bGuid.Prefix)
		setUnackedUnlessMatched(bRecord.Acks, aGuid.Prefix)

	case isExternal(aParent):
		setUnackedUnlessMatched(aParent.Acks, bGuid.Prefix)
		setUnackedUnlessMatched(bParent.Acks, aGuid.Prefix)
	}
}

func isExternal(p *ParticipantRecord) bool {
	return !p.IsMyClient && !p.IsLocalServer
}

func setUnackedUnlessMatched(acks AckMap, prefix GuidPrefix) {
	if current, ok := acks[prefix]; ok && current.Matched() {
		return
	}
	acks[prefix] = RelevantUnacked
}

// insertIntoTopicMapLocked implements the topic-map half of spec.md §4.4.3:
// a virtual endpoint is inserted into every existing real topic bucket for
// its own direction; the first real-topic bucket created in a direction
// pulls in any already-materialized virtual endpoints for that direction.
func (d *DDB) insertIntoTopicMapLocked(byTopic map[string]*orderedSet, guid Guid, topic string, isVirtual bool, isWriter bool) {
	set, existed := byTopic[topic]
	if !existed {
		set = newOrderedSet()
		byTopic[topic] = set
		if topic != VirtualTopicName {
			if virtualSet, ok := byTopic[VirtualTopicName]; ok {
				for _, vg := range virtualSet.items() {
					set.add(vg)
				}
			}
		}
	}
	set.add(guid)

	if isVirtual {
		for t, s := range byTopic {
			if t != VirtualTopicName && t != topic {
				s.add(guid)
			}
		}
	}
}

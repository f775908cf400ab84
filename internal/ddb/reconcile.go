package ddb

// ProcessDirtyTopics implements spec.md §4.4.5: walk every dirty topic once,
// evaluating the four sub-conditions for each (writer, reader) pair in it,
// and returns whether any topic is still dirty afterward.
func (d *DDB) ProcessDirtyTopics() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	topics := make([]string, 0, len(d.dirtyTopics))
	for topic := range d.dirtyTopics {
		topics = append(topics, topic)
	}

	for _, topic := range topics {
		if d.reconcileTopicLocked(topic) {
			delete(d.dirtyTopics, topic)
		}
	}

	d.metrics.observeDirtyTopics(len(d.dirtyTopics))
	return len(d.dirtyTopics) > 0
}

// reconcileTopicLocked evaluates every (writer, reader) pair of topic and
// reports whether the topic is now fully clearable.
func (d *DDB) reconcileTopicLocked(topic string) bool {
	writerSet, ok := d.writersByTopic[topic]
	if !ok {
		return true
	}
	readerSet, ok := d.readersByTopic[topic]
	if !ok {
		return true
	}

	clearable := true
	for _, wGuid := range writerSet.items() {
		writer, ok := d.writers[wGuid]
		if !ok {
			continue
		}
		writerParent, ok := d.participants[wGuid.Prefix]
		if !ok {
			continue
		}

		for _, rGuid := range readerSet.items() {
			reader, ok := d.readers[rGuid]
			if !ok {
				continue
			}
			readerParent, ok := d.participants[rGuid.Prefix]
			if !ok {
				continue
			}

			// A pair is only "real" when neither side is a virtual
			// endpoint. Virtual endpoints stand in for paths this server
			// relays through, not for peers a real client owes an ack to;
			// they still pull the relevant DATA(p) and the real side's
			// DATA(w)/DATA(r) onto a send list when unacked (a virtual
			// endpoint's own change is never sent); they must never hold a
			// topic between two real clients dirty on that basis alone.
			realPair := !writer.IsVirtual && !reader.IsVirtual

			if readerParent.Acks[wGuid.Prefix] == RelevantAcked {
				if !reader.IsVirtual && reader.Acks[wGuid.Prefix] == RelevantUnacked {
					d.edpSubToSend.append(reader.Change)
				}
			} else {
				if readerParent.Change != nil {
					d.pdpToSend.append(readerParent.Change)
				}
				if realPair {
					clearable = false
				}
			}

			if writerParent.Acks[rGuid.Prefix] == RelevantAcked {
				if !writer.IsVirtual && writer.Acks[rGuid.Prefix] == RelevantUnacked {
					d.edpPubToSend.append(writer.Change)
				}
			} else {
				if writerParent.Change != nil {
					d.pdpToSend.append(writerParent.Change)
				}
				if realPair {
					clearable = false
				}
			}
		}
	}

	return clearable
}

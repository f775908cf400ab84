package ddb

import "testing"

// TestScenarioSingleClientJoins is spec.md §8 S1.
func TestScenarioSingleClientJoins(t *testing.T) {
	s := testPrefix(1)
	u := testPrefix(2)
	c := testPrefix(3)

	d := New(s, []GuidPrefix{u})

	sChange := pdpChange(s, 1)
	mustUpdateParticipant(t, d, sChange, ParticipantChangeData{})
	d.ProcessPdpQueue()

	mustUpdateParticipant(t, d, pdpChange(c, 1), ParticipantChangeData{IsMyClient: true})
	d.ProcessPdpQueue()

	toSend := d.PdpToSend()
	if len(toSend) != 1 || toSend[0] != sChange {
		t.Fatalf("pdp_to_send = %v, want exactly [server's own DATA(p)]", toSend)
	}

	cRecord, ok := d.participants[c]
	if !ok {
		t.Fatal("participant C was not created")
	}
	if cRecord.Acks[s] != RelevantAcked {
		t.Fatalf("C.ack_map[S] = %v, want RELEVANT_ACKED", cRecord.Acks[s])
	}
	if cRecord.Acks[u] != RelevantUnacked {
		t.Fatalf("C.ack_map[U] = %v, want RELEVANT_UNACKED", cRecord.Acks[u])
	}
	if d.ServerAckedByAll() {
		t.Fatal("server_acked_by_all should be false once a new peer is unacked")
	}
}

// TestScenarioEndpointBeforeParticipant is spec.md §8 S2.
func TestScenarioEndpointBeforeParticipant(t *testing.T) {
	d := New(testPrefix(1), nil)
	cx := testPrefix(9)
	w := writerGuid(cx, 1)

	change := endpointChange(w, 1)
	mustUpdateEndpoint(t, d, change, "T")
	d.ProcessEdpQueue()

	if _, ok := d.writers[w]; ok {
		t.Fatal("writer record must not be created when its participant is unknown")
	}
	released := d.ChangesToRelease()
	if len(released) != 1 || released[0] != change {
		t.Fatalf("changes_to_release = %v, want exactly [the orphan change]", released)
	}
	if len(d.dirtyTopics) != 0 {
		t.Fatal("no dirty topic should be added for a rejected orphan endpoint")
	}
}

// newMutuallyAckedPair builds a server + two client participants whose
// participant-level ack maps are already mutually RELEVANT_ACKED, the
// precondition stated by spec.md §8 S3.
func newMutuallyAckedPair(t *testing.T) (d *DDB, c1, c2 GuidPrefix) {
	t.Helper()
	s := testPrefix(1)
	c1, c2 = testPrefix(10), testPrefix(11)

	d = New(s, nil)
	mustUpdateParticipant(t, d, pdpChange(s, 1), ParticipantChangeData{})
	d.ProcessPdpQueue()
	mustUpdateParticipant(t, d, pdpChange(c1, 1), ParticipantChangeData{IsMyClient: true})
	d.ProcessPdpQueue()
	mustUpdateParticipant(t, d, pdpChange(c2, 1), ParticipantChangeData{IsMyClient: true})
	d.ProcessPdpQueue()

	d.participants[c1].Acks[c2] = RelevantAcked
	d.participants[c2].Acks[c1] = RelevantAcked
	return d, c1, c2
}

// TestScenarioTwoClientsSameTopic is spec.md §8 S3.
func TestScenarioTwoClientsSameTopic(t *testing.T) {
	d, c1, c2 := newMutuallyAckedPair(t)

	w1 := writerGuid(c1, 1)
	wChange := endpointChange(w1, 1)
	mustUpdateEndpoint(t, d, wChange, "T")
	d.ProcessEdpQueue()

	r2 := readerGuid(c2, 1)
	rChange := endpointChange(r2, 1)
	mustUpdateEndpoint(t, d, rChange, "T")
	d.ProcessEdpQueue()

	stillDirty := d.ProcessDirtyTopics()
	if stillDirty {
		t.Fatal("topic T should be fully clearable once both hosts are mutually PDP-acked")
	}

	pubs := d.EdpPublicationsToSend()
	if len(pubs) != 1 || pubs[0] != wChange {
		t.Fatalf("edp_pub_to_send = %v, want exactly [DATA(w)]", pubs)
	}
	subs := d.EdpSubscriptionsToSend()
	if len(subs) != 1 || subs[0] != rChange {
		t.Fatalf("edp_sub_to_send = %v, want exactly [DATA(r)]", subs)
	}
}

// TestScenarioEndpointBeforePdpAck is spec.md §8 S4.
func TestScenarioEndpointBeforePdpAck(t *testing.T) {
	s := testPrefix(1)
	c1, c2 := testPrefix(20), testPrefix(21)

	d := New(s, nil)
	mustUpdateParticipant(t, d, pdpChange(s, 1), ParticipantChangeData{})
	d.ProcessPdpQueue()
	mustUpdateParticipant(t, d, pdpChange(c1, 1), ParticipantChangeData{IsMyClient: true})
	d.ProcessPdpQueue()
	mustUpdateParticipant(t, d, pdpChange(c2, 1), ParticipantChangeData{IsMyClient: true})
	d.ProcessPdpQueue()
	// Deliberately no mutual PDP ack between c1 and c2.

	mustUpdateEndpoint(t, d, endpointChange(writerGuid(c1, 1), 1), "T")
	d.ProcessEdpQueue()
	mustUpdateEndpoint(t, d, endpointChange(readerGuid(c2, 1), 1), "T")
	d.ProcessEdpQueue()

	stillDirty := d.ProcessDirtyTopics()
	if !stillDirty {
		t.Fatal("topic T must remain dirty until the hosts are mutually PDP-acked")
	}
	if len(d.PdpToSend()) == 0 {
		t.Fatal("pdp_to_send must carry the DATA(p) that has to propagate first")
	}
	if len(d.EdpPublicationsToSend()) != 0 {
		t.Fatal("edp_pub_to_send must stay empty until the PDP path clears")
	}
}

// TestScenarioClientLeaves is spec.md §8 S5, continuing from S3.
func TestScenarioClientLeaves(t *testing.T) {
	d, c1, c2 := newMutuallyAckedPair(t)

	w1 := writerGuid(c1, 1)
	mustUpdateEndpoint(t, d, endpointChange(w1, 1), "T")
	d.ProcessEdpQueue()
	r2 := readerGuid(c2, 1)
	mustUpdateEndpoint(t, d, endpointChange(r2, 1), "T")
	d.ProcessEdpQueue()
	d.ProcessDirtyTopics()

	disposal := disposeParticipantChange(c1, 2)
	mustUpdateParticipant(t, d, disposal, ParticipantChangeData{})
	d.ProcessPdpQueue()

	dispositions := d.ChangesToDispose()
	if len(dispositions) != 1 || dispositions[0] != disposal {
		t.Fatalf("disposals = %v, want exactly [DATA(Up)]", dispositions)
	}
	if _, ok := d.writers[w1]; ok {
		t.Fatal("C1's writer must be released, not re-announced as DATA(Uw)")
	}
	released := d.ChangesToRelease()
	foundW1 := false
	for _, c := range released {
		if c.InstanceHandle == w1 {
			foundW1 = true
		}
	}
	if !foundW1 {
		t.Fatal("C1's writer change must appear in changes_to_release")
	}

	if _, stillTracked := d.participants[c2].Acks[c1]; stillTracked {
		t.Fatal("C2's participant ack map must no longer reference C1")
	}
	if _, stillTracked := d.readers[r2].Acks[c1]; stillTracked {
		t.Fatal("C2's reader ack map must no longer reference C1")
	}

	p, ok := d.participants[c1]
	if !ok {
		t.Fatal("C1's participant record must persist in DISPOSING state until fully acked")
	}
	if p.Change.Kind != KindDisposed {
		t.Fatal("C1's participant record must hold the disposal as its current change")
	}

	functor := d.NewAckFunctor(disposal)
	functor.Call(c2, ProxyAcked)
	functor.Finish()

	if _, ok := d.participants[c1]; ok {
		t.Fatal("C1's participant record must be erased once every peer acked the disposal")
	}
}

// TestScenarioSupersededUpdate is spec.md §8 S6.
func TestScenarioSupersededUpdate(t *testing.T) {
	s := testPrefix(1)
	cx := testPrefix(30)

	d := New(s, nil)
	mustUpdateParticipant(t, d, pdpChange(s, 1), ParticipantChangeData{})
	d.ProcessPdpQueue()

	mustUpdateParticipant(t, d, pdpChange(cx, 5), ParticipantChangeData{})
	d.ProcessPdpQueue()

	acksBefore := map[GuidPrefix]AckStatus{}
	for k, v := range d.participants[cx].Acks {
		acksBefore[k] = v
	}

	stale := pdpChange(cx, 3)
	mustUpdateParticipant(t, d, stale, ParticipantChangeData{})
	d.ProcessPdpQueue()

	if d.participants[cx].Change.SampleIdentity.SequenceNumber != 5 {
		t.Fatalf("stored sequence number = %d, want 5", d.participants[cx].Change.SampleIdentity.SequenceNumber)
	}
	released := d.ChangesToRelease()
	found := 0
	for _, c := range released {
		if c == stale {
			found++
		}
	}
	if found != 1 {
		t.Fatalf("stale change appeared %d times in changes_to_release, want exactly 1", found)
	}
	for k, v := range acksBefore {
		if d.participants[cx].Acks[k] != v {
			t.Fatalf("ack map changed for %v: was %v, now %v", k, v, d.participants[cx].Acks[k])
		}
	}
}

package ddb

import "testing"

func TestPdpIsRelevantOwnSelfOriginAlwaysTrue(t *testing.T) {
	s := testPrefix(1)
	d := New(s, nil)
	change := pdpChange(s, 1)
	reader := participantGuid(testPrefix(2))

	if !d.PdpIsRelevant(change, reader) {
		t.Fatal("this server's own DATA(p) must always be relevant to a PDP reader")
	}
}

func TestPdpIsRelevantFollowsAckState(t *testing.T) {
	s, c := testPrefix(1), testPrefix(2)
	d := New(s, nil)
	mustUpdateParticipant(t, d, pdpChange(s, 1), ParticipantChangeData{})
	d.ProcessPdpQueue()
	mustUpdateParticipant(t, d, pdpChange(c, 1), ParticipantChangeData{IsMyClient: true})
	d.ProcessPdpQueue()

	other := testPrefix(3)
	otherGuid := participantGuid(other)
	change := pdpChange(c, 1)

	d.participants[c].Acks[other] = RelevantUnacked
	if !d.PdpIsRelevant(change, otherGuid) {
		t.Fatal("an unacked reader must see the change as relevant")
	}

	d.participants[c].Acks[other] = RelevantAcked
	if d.PdpIsRelevant(change, otherGuid) {
		t.Fatal("an acked reader must no longer see the change as relevant")
	}

	unknown := participantGuid(testPrefix(4))
	if d.PdpIsRelevant(change, unknown) {
		t.Fatal("a reader absent from the ack map must not be relevant")
	}
}

func TestEdpPubIsRelevantGatedOnHostMatch(t *testing.T) {
	s, c1, c2 := testPrefix(1), testPrefix(2), testPrefix(3)
	d := New(s, nil)
	mustUpdateParticipant(t, d, pdpChange(s, 1), ParticipantChangeData{})
	d.ProcessPdpQueue()
	mustUpdateParticipant(t, d, pdpChange(c1, 1), ParticipantChangeData{IsMyClient: true})
	d.ProcessPdpQueue()
	mustUpdateParticipant(t, d, pdpChange(c2, 1), ParticipantChangeData{IsMyClient: true})
	d.ProcessPdpQueue()

	w1 := writerGuid(c1, 1)
	wChange := endpointChange(w1, 1)
	mustUpdateEndpoint(t, d, wChange, "T")
	d.ProcessEdpQueue()

	reader := participantGuid(c2)
	if d.EdpPubIsRelevant(wChange, reader) {
		t.Fatal("EDP announcement must not be relevant before the owning host is PDP-matched")
	}

	d.participants[c1].Acks[c2] = RelevantAcked
	if !d.EdpPubIsRelevant(wChange, reader) {
		t.Fatal("EDP announcement must become relevant once the owning host is PDP-matched and the writer itself is unacked")
	}

	d.writers[w1].Acks[c2] = RelevantAcked
	if d.EdpPubIsRelevant(wChange, reader) {
		t.Fatal("an acked writer entry must stop being relevant even with a matched host")
	}
}

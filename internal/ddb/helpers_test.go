package ddb

// testPrefix builds a distinct GuidPrefix from a single seed byte, enough
// to keep scenario tests readable without colliding.
func testPrefix(seed byte) GuidPrefix {
	var p GuidPrefix
	p[11] = seed
	return p
}

func participantGuid(prefix GuidPrefix) Guid {
	return Guid{Prefix: prefix, Entity: ParticipantEntityId}
}

func writerGuid(prefix GuidPrefix, seed byte) Guid {
	return Guid{Prefix: prefix, Entity: EntityId{0, 0, seed, entityKindWriterWithKey}}
}

func readerGuid(prefix GuidPrefix, seed byte) Guid {
	return Guid{Prefix: prefix, Entity: EntityId{0, 0, seed, entityKindReaderWithKey}}
}

func pdpChange(prefix GuidPrefix, seq int64) *CacheChange {
	g := participantGuid(prefix)
	return &CacheChange{
		WriterGuid:     g,
		InstanceHandle: g,
		Kind:           KindAlive,
		SampleIdentity: SampleIdentity{WriterGuid: g, SequenceNumber: seq},
	}
}

func disposeParticipantChange(prefix GuidPrefix, seq int64) *CacheChange {
	g := participantGuid(prefix)
	return &CacheChange{
		WriterGuid:     g,
		InstanceHandle: g,
		Kind:           KindDisposed,
		SampleIdentity: SampleIdentity{WriterGuid: g, SequenceNumber: seq},
	}
}

func endpointChange(guid Guid, seq int64) *CacheChange {
	return &CacheChange{
		WriterGuid:     guid,
		InstanceHandle: guid,
		Kind:           KindAlive,
		SampleIdentity: SampleIdentity{WriterGuid: guid, SequenceNumber: seq},
	}
}

func mustUpdateParticipant(t testingT, d *DDB, change *CacheChange, data ParticipantChangeData) {
	t.Helper()
	if err := d.UpdateParticipant(change, data); err != nil {
		t.Fatalf("UpdateParticipant: %v", err)
	}
}

func mustUpdateEndpoint(t testingT, d *DDB, change *CacheChange, topic string) {
	t.Helper()
	if err := d.UpdateEndpoint(change, topic); err != nil {
		t.Fatalf("UpdateEndpoint: %v", err)
	}
}

// testingT is the subset of *testing.T used by the mustX helpers, so they
// can be shared across files without importing "testing" types directly
// into every call site's signature.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

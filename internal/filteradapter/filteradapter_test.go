package filteradapter

import (
	"testing"

	"github.com/meshdisco/discoveryd/internal/ddb"
)

func testPrefix(seed byte) ddb.GuidPrefix {
	var p ddb.GuidPrefix
	p[11] = seed
	return p
}

func participantGuid(prefix ddb.GuidPrefix) ddb.Guid {
	return ddb.Guid{Prefix: prefix, Entity: ddb.ParticipantEntityId}
}

func TestPdpFilterDelegatesToDDB(t *testing.T) {
	s := testPrefix(1)
	db := ddb.New(s, nil)
	filter := NewPdpFilter(db)

	sGuid := participantGuid(s)
	change := &ddb.CacheChange{
		WriterGuid: sGuid, InstanceHandle: sGuid, Kind: ddb.KindAlive,
		SampleIdentity: ddb.SampleIdentity{WriterGuid: sGuid, SequenceNumber: 1},
	}
	reader := participantGuid(testPrefix(2))

	if !filter.IsRelevant(change, reader) {
		t.Fatal("pdp filter must delegate to DDB.PdpIsRelevant")
	}
}

func TestEdpFiltersAreDistinctBindings(t *testing.T) {
	s := testPrefix(1)
	db := ddb.New(s, nil)

	pub := NewEdpPubFilter(db)
	sub := NewEdpSubFilter(db)

	if pub == sub {
		t.Fatal("edp publication and subscription filters must be distinct bindings")
	}
}

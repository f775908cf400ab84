package ddb

// Kind is the announcement kind carried by a CacheChange.
type Kind int

const (
	KindAlive Kind = iota
	KindDisposed
)

func (k Kind) String() string {
	if k == KindDisposed {
		return "DISPOSED"
	}
	return "ALIVE"
}

// SampleIdentity identifies one sample in a writer's history: the writer's
// Guid plus a strictly increasing sequence number. Two CacheChanges with
// equal SampleIdentity are considered the exact same sample (spec.md §3).
type SampleIdentity struct {
	WriterGuid     Guid
	SequenceNumber int64
}

// CacheChange is an opaque, transport-owned record of one received
// announcement. The DDB reads these fields and retains a pointer; ownership
// transfers to the DDB on a successful Update and is returned to the
// transport pool via ChangesToRelease (spec.md §3, §9).
type CacheChange struct {
	WriterGuid        Guid
	InstanceHandle    Guid
	Kind              Kind
	SampleIdentity    SampleIdentity
	SerializedPayload []byte
}

// ParticipantChangeData accompanies a PDP CacheChange pushed onto the PDP
// queue (spec.md §4.1).
type ParticipantChangeData struct {
	MetatrafficLocators []string
	IsClient            bool
	IsMyClient          bool
	IsMyServer          bool
}

package ddb

// ParticipantRecord is the per-GuidPrefix state described in spec.md §3.
type ParticipantRecord struct {
	Change  *CacheChange
	Acks    AckMap
	Writers map[Guid]struct{}
	Readers map[Guid]struct{}

	IsClient      bool
	IsMyClient    bool
	IsMyServer    bool
	IsLocalServer bool

	MetatrafficLocators []string
}

func newParticipantRecord(change *CacheChange, data ParticipantChangeData, isLocalServer bool) *ParticipantRecord {
	return &ParticipantRecord{
		Change:              change,
		Acks:                AckMap{},
		Writers:             map[Guid]struct{}{},
		Readers:             map[Guid]struct{}{},
		IsClient:            data.IsClient,
		IsMyClient:          data.IsMyClient,
		IsMyServer:          data.IsMyServer,
		IsLocalServer:       isLocalServer,
		MetatrafficLocators: data.MetatrafficLocators,
	}
}

package ddb

import (
	"encoding/base64"
	"fmt"
)

// Snapshot is the on-disk form of a DDB's record state (SPEC_FULL.md §4.9).
// The format is deliberately opaque to the rest of the system: spec.md §6
// only requires that to_json/from_json round-trip, not a specific shape.
type Snapshot struct {
	Participants map[string]ParticipantSnapshot `json:"participants"`
	Writers      map[string]EndpointSnapshot    `json:"writers"`
	Readers      map[string]EndpointSnapshot    `json:"readers"`
}

// ChangeSnapshot is the wire form of one CacheChange.
type ChangeSnapshot struct {
	WriterGuid        string `json:"writer_guid"`
	InstanceHandle    string `json:"instance_handle"`
	Kind              string `json:"kind"`
	SampleWriterGuid  string `json:"sample_writer_guid"`
	SampleSequenceNum int64  `json:"sample_sequence_number"`
	Payload           string `json:"payload"`
}

// ParticipantSnapshot is the wire form of a ParticipantRecord.
type ParticipantSnapshot struct {
	Change              ChangeSnapshot    `json:"change"`
	Acks                map[string]string `json:"acks"`
	IsClient            bool              `json:"is_client"`
	IsMyClient          bool              `json:"is_my_client"`
	IsMyServer          bool              `json:"is_my_server"`
	IsLocalServer       bool              `json:"is_local_server"`
	MetatrafficLocators []string          `json:"metatraffic_locators,omitempty"`
}

// EndpointSnapshot is the wire form of an EndpointRecord.
type EndpointSnapshot struct {
	Change    ChangeSnapshot    `json:"change"`
	Acks      map[string]string `json:"acks"`
	Topic     string            `json:"topic"`
	IsVirtual bool              `json:"is_virtual"`
}

// QueueReplay captures the front-buffer contents of both inbound queues for
// crash recovery (SPEC_FULL.md §4.9). It is produced/consumed independently
// of Snapshot since the queues are not part of the DDB's record state.
type QueueReplay struct {
	PdpItems []PdpReplayItem `json:"pdp_items"`
	EdpItems []EdpReplayItem `json:"edp_items"`
}

type PdpReplayItem struct {
	Change ChangeSnapshot        `json:"change"`
	Data   ParticipantChangeData `json:"data"`
}

type EdpReplayItem struct {
	Change ChangeSnapshot `json:"change"`
	Topic  string         `json:"topic"`
}

// ToSnapshot renders the DDB's current record state (SPEC_FULL.md §4.9).
func (d *DDB) ToSnapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := Snapshot{
		Participants: make(map[string]ParticipantSnapshot, len(d.participants)),
		Writers:      make(map[string]EndpointSnapshot, len(d.writers)),
		Readers:      make(map[string]EndpointSnapshot, len(d.readers)),
	}

	for prefix, p := range d.participants {
		snap.Participants[prefix.String()] = ParticipantSnapshot{
			Change:              snapshotChange(p.Change),
			Acks:                snapshotAcks(p.Acks),
			IsClient:            p.IsClient,
			IsMyClient:          p.IsMyClient,
			IsMyServer:          p.IsMyServer,
			IsLocalServer:       p.IsLocalServer,
			MetatrafficLocators: p.MetatrafficLocators,
		}
	}
	for guid, w := range d.writers {
		snap.Writers[guid.String()] = EndpointSnapshot{
			Change:    snapshotChange(w.Change),
			Acks:      snapshotAcks(w.Acks),
			Topic:     w.Topic,
			IsVirtual: w.IsVirtual,
		}
	}
	for guid, r := range d.readers {
		snap.Readers[guid.String()] = EndpointSnapshot{
			Change:    snapshotChange(r.Change),
			Acks:      snapshotAcks(r.Acks),
			Topic:     r.Topic,
			IsVirtual: r.IsVirtual,
		}
	}
	return snap
}

func snapshotChange(c *CacheChange) ChangeSnapshot {
	if c == nil {
		return ChangeSnapshot{}
	}
	return ChangeSnapshot{
		WriterGuid:        c.WriterGuid.String(),
		InstanceHandle:    c.InstanceHandle.String(),
		Kind:              c.Kind.String(),
		SampleWriterGuid:  c.SampleIdentity.WriterGuid.String(),
		SampleSequenceNum: c.SampleIdentity.SequenceNumber,
		Payload:           base64.StdEncoding.EncodeToString(c.SerializedPayload),
	}
}

func snapshotAcks(acks AckMap) map[string]string {
	out := make(map[string]string, len(acks))
	for prefix, status := range acks {
		out[prefix.String()] = status.String()
	}
	return out
}

// FromSnapshot rebuilds record state from a previously captured Snapshot.
// The DDB must be newly constructed and disabled; callers enable() it once
// loading is complete.
func FromSnapshot(serverPrefix GuidPrefix, upstream []GuidPrefix, snap Snapshot, opts ...Option) (*DDB, error) {
	d := New(serverPrefix, upstream, opts...)
	d.enabled = false

	for hexPrefix, ps := range snap.Participants {
		prefix, err := parseGuidPrefix(hexPrefix)
		if err != nil {
			return nil, fmt.Errorf("ddb: snapshot participant %q: %w", hexPrefix, err)
		}
		change, err := restoreChange(ps.Change)
		if err != nil {
			return nil, fmt.Errorf("ddb: snapshot participant %q: %w", hexPrefix, err)
		}
		record := &ParticipantRecord{
			Change:              change,
			Acks:                restoreAcks(ps.Acks),
			Writers:             map[Guid]struct{}{},
			Readers:             map[Guid]struct{}{},
			IsClient:            ps.IsClient,
			IsMyClient:          ps.IsMyClient,
			IsMyServer:          ps.IsMyServer,
			IsLocalServer:       ps.IsLocalServer,
			MetatrafficLocators: ps.MetatrafficLocators,
		}
		d.participants[prefix] = record
	}

	if err := d.restoreEndpoints(snap.Writers, true); err != nil {
		return nil, err
	}
	if err := d.restoreEndpoints(snap.Readers, false); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *DDB) restoreEndpoints(section map[string]EndpointSnapshot, isWriter bool) error {
	byGuid, byTopic := d.endpointMapsLocked(isWriter)
	for hexGuid, es := range section {
		guid, err := parseGuid(hexGuid)
		if err != nil {
			return fmt.Errorf("ddb: snapshot endpoint %q: %w", hexGuid, err)
		}
		change, err := restoreChange(es.Change)
		if err != nil {
			return fmt.Errorf("ddb: snapshot endpoint %q: %w", hexGuid, err)
		}
		record := &EndpointRecord{
			Change:    change,
			Acks:      restoreAcks(es.Acks),
			Topic:     es.Topic,
			IsVirtual: es.IsVirtual,
		}
		byGuid[guid] = record
		d.insertIntoTopicMapLocked(byTopic, guid, es.Topic, es.IsVirtual, isWriter)
		if parent, ok := d.participants[guid.Prefix]; ok {
			if isWriter {
				parent.Writers[guid] = struct{}{}
			} else {
				parent.Readers[guid] = struct{}{}
			}
		}
	}
	return nil
}

func restoreChange(cs ChangeSnapshot) (*CacheChange, error) {
	if cs.WriterGuid == "" && cs.InstanceHandle == "" {
		return nil, nil
	}
	writerGuid, err := parseGuid(cs.WriterGuid)
	if err != nil {
		return nil, err
	}
	instanceHandle, err := parseGuid(cs.InstanceHandle)
	if err != nil {
		return nil, err
	}
	sampleWriterGuid, err := parseGuid(cs.SampleWriterGuid)
	if err != nil {
		return nil, err
	}
	payload, err := base64.StdEncoding.DecodeString(cs.Payload)
	if err != nil {
		return nil, err
	}
	kind := KindAlive
	if cs.Kind == "DISPOSED" {
		kind = KindDisposed
	}
	return &CacheChange{
		WriterGuid:     writerGuid,
		InstanceHandle: instanceHandle,
		Kind:           kind,
		SampleIdentity: SampleIdentity{
			WriterGuid:     sampleWriterGuid,
			SequenceNumber: cs.SampleSequenceNum,
		},
		SerializedPayload: payload,
	}, nil
}

func restoreAcks(in map[string]string) AckMap {
	out := make(AckMap, len(in))
	for hexPrefix, status := range in {
		prefix, err := parseGuidPrefix(hexPrefix)
		if err != nil {
			continue
		}
		switch status {
		case "RELEVANT_ACKED":
			out[prefix] = RelevantAcked
		case "IRRELEVANT":
			out[prefix] = Irrelevant
		default:
			out[prefix] = RelevantUnacked
		}
	}
	return out
}

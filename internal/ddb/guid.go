// Package ddb implements the Discovery Database: the in-memory state and
// reconciliation core of a Discovery Server for an RTPS-like publish/
// subscribe middleware.
package ddb

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// GuidPrefix uniquely names a participant.
type GuidPrefix [12]byte

// String renders the prefix as lowercase hex, used as map/log keys.
func (p GuidPrefix) String() string {
	return hex.EncodeToString(p[:])
}

// EntityId classifies an entity within its participant. The low byte
// (index 3) distinguishes participant/writer/reader kinds; see
// ClassifyEntity.
type EntityId [4]byte

func (e EntityId) String() string {
	return hex.EncodeToString(e[:])
}

// Guid = (GuidPrefix, EntityId). Guid is a value type so it can be used
// directly as a map key, the way the teacher uses small comparable structs
// (e.g. serviceId{namespace, name}) as map keys throughout
// controller/destination and controller/api/destination/watcher.
type Guid struct {
	Prefix GuidPrefix
	Entity EntityId
}

func (g Guid) String() string {
	return fmt.Sprintf("%s:%s", g.Prefix, g.Entity)
}

// Reserved EntityId byte-3 values, bit-exact with RTPS (spec.md §6).
const (
	entityKindWriterWithKey   = 0x02
	entityKindWriterNoKey     = 0x03
	entityKindWriterWithKeyBI = 0xc2
	entityKindWriterNoKeyBI   = 0xc3
	entityKindReaderWithKey   = 0x04
	entityKindReaderNoKey     = 0x07
	entityKindReaderWithKeyBI = 0xc4
	entityKindReaderNoKeyBI   = 0xc7
	entityKindParticipantBI   = 0xc1
)

// ParticipantEntityId is the reserved EntityId every participant Guid uses.
var ParticipantEntityId = EntityId{0x00, 0x00, 0x01, entityKindParticipantBI}

// VirtualWriterEntityId and VirtualReaderEntityId are the reserved EntityIds
// used for the per-local-server virtual endpoints described in spec.md
// §4.4.2. Their low byte is shared with ordinary builtin writer/reader
// EntityIds on purpose: ClassifyEntity must still classify them as a writer or
// reader respectively so EDP processing treats them uniformly; what makes
// them virtual is that they live under VirtualTopicName (invariant 6), not
// their EntityId.
var (
	VirtualWriterEntityId = EntityId{0x00, 0x00, 0x50, entityKindWriterWithKeyBI}
	VirtualReaderEntityId = EntityId{0x00, 0x00, 0x50, entityKindReaderWithKeyBI}
)

// VirtualTopicName is the reserved topic under which virtual endpoints live
// (spec.md §3 invariant 6, §9).
const VirtualTopicName = "__virtual__"

// EntityClass is the classification of a Guid's EntityId.
type EntityClass int

const (
	ClassUnknown EntityClass = iota
	ClassParticipant
	ClassWriter
	ClassReader
)

// ParseGuidPrefix parses the hex form produced by GuidPrefix.String, for
// callers building a GuidPrefix out of configuration (a CLI flag, a config
// file) rather than out of a received CacheChange.
func ParseGuidPrefix(s string) (GuidPrefix, error) {
	return parseGuidPrefix(s)
}

// parseGuidPrefix parses the hex form produced by GuidPrefix.String.
func parseGuidPrefix(s string) (GuidPrefix, error) {
	var p GuidPrefix
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(p) {
		return p, fmt.Errorf("ddb: invalid guid prefix %q", s)
	}
	copy(p[:], b)
	return p, nil
}

// parseGuid parses the "prefix:entity" hex form produced by Guid.String.
func parseGuid(s string) (Guid, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Guid{}, fmt.Errorf("ddb: invalid guid %q", s)
	}
	prefix, err := parseGuidPrefix(parts[0])
	if err != nil {
		return Guid{}, err
	}
	var entity EntityId
	b, err := hex.DecodeString(parts[1])
	if err != nil || len(b) != len(entity) {
		return Guid{}, fmt.Errorf("ddb: invalid guid entity %q", s)
	}
	copy(entity[:], b)
	return Guid{Prefix: prefix, Entity: entity}, nil
}

// ClassifyEntity classifies a Guid by its EntityId's low byte, bit-exact
// with spec.md §6.
func ClassifyEntity(id EntityId) EntityClass {
	switch id[3] {
	case entityKindWriterWithKey, entityKindWriterWithKeyBI, entityKindWriterNoKey, entityKindWriterNoKeyBI:
		return ClassWriter
	case entityKindReaderWithKey, entityKindReaderWithKeyBI, entityKindReaderNoKey, entityKindReaderNoKeyBI:
		return ClassReader
	case entityKindParticipantBI:
		return ClassParticipant
	default:
		return ClassUnknown
	}
}

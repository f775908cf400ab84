package demotransport

import (
	"encoding/json"
	"fmt"

	"github.com/meshdisco/discoveryd/internal/ddb"
)

// participantPayload is the demo transport's wire shape for a DATA(p)'s
// serialized payload: a JSON document carrying exactly the fields
// ddb.ParticipantChangeData needs, standing in for whatever a real RTPS
// parameter-list encoding would carry.
type participantPayload struct {
	MetatrafficLocators []string `json:"metatraffic_locators"`
	IsClient            bool     `json:"is_client"`
	IsMyClient          bool     `json:"is_my_client"`
	IsMyServer          bool     `json:"is_my_server"`
}

// EncodeParticipant serializes data the way a producer (the demo
// entrypoint, an integration test) builds a DATA(p)'s payload.
func EncodeParticipant(data ddb.ParticipantChangeData) []byte {
	b, _ := json.Marshal(participantPayload{
		MetatrafficLocators: data.MetatrafficLocators,
		IsClient:            data.IsClient,
		IsMyClient:          data.IsMyClient,
		IsMyServer:          data.IsMyServer,
	})
	return b
}

// ParticipantCodec implements listener.ParticipantDecoder against the JSON
// shape EncodeParticipant produces.
type ParticipantCodec struct{}

// DecodeParticipant implements listener.ParticipantDecoder.
func (ParticipantCodec) DecodeParticipant(payload []byte) (ddb.ParticipantChangeData, error) {
	var p participantPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ddb.ParticipantChangeData{}, fmt.Errorf("demotransport: decode DATA(p): %w", err)
	}
	return ddb.ParticipantChangeData{
		MetatrafficLocators: p.MetatrafficLocators,
		IsClient:            p.IsClient,
		IsMyClient:          p.IsMyClient,
		IsMyServer:          p.IsMyServer,
	}, nil
}

// topicPayload is the demo transport's wire shape for a DATA(w|r)'s
// serialized payload.
type topicPayload struct {
	Topic string `json:"topic"`
}

// EncodeTopic serializes topic the way a producer builds a DATA(w|r)'s
// payload.
func EncodeTopic(topic string) []byte {
	b, _ := json.Marshal(topicPayload{Topic: topic})
	return b
}

// TopicCodec implements listener.TopicResolver against the JSON shape
// EncodeTopic produces.
type TopicCodec struct{}

// ResolveTopic implements listener.TopicResolver.
func (TopicCodec) ResolveTopic(payload []byte) (string, error) {
	var p topicPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("demotransport: decode DATA(w|r): %w", err)
	}
	if p.Topic == "" {
		return "", fmt.Errorf("demotransport: DATA(w|r) payload missing topic")
	}
	return p.Topic, nil
}

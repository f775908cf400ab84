package demotransport

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	logging "github.com/sirupsen/logrus"

	"github.com/meshdisco/discoveryd/internal/ddb"
	"github.com/meshdisco/discoveryd/internal/listener"
)

// ingestRequest is the JSON body accepted by the PDP/EDP ingest endpoints:
// a peer announcement arriving the way a real RTPS reader would hand one
// to the listener glue, except over HTTP instead of the wire.
type ingestRequest struct {
	GuidPrefix          string   `json:"guid_prefix"`
	EntityID            string   `json:"entity_id,omitempty"`
	Sequence            int64    `json:"sequence"`
	Disposed            bool     `json:"disposed"`
	MetatrafficLocators []string `json:"metatraffic_locators,omitempty"`
	IsClient            bool     `json:"is_client,omitempty"`
	IsMyClient          bool     `json:"is_my_client,omitempty"`
	IsMyServer          bool     `json:"is_my_server,omitempty"`
	Topic               string   `json:"topic,omitempty"`
}

// IngestServer exposes the demo transport's only externally reachable
// surface: HTTP endpoints a peer (or an integration test, or curl) posts a
// DATA(p)/DATA(w)/DATA(r) announcement to, standing in for a builtin
// reader noticing new traffic. Each accepted post is appended to the
// matching reader history and immediately drained through l, the way a
// real transport would wake the listener as soon as a sample lands.
type IngestServer struct {
	transport *Transport
	l         *listener.Listener
	log       *logging.Entry
}

// NewIngestServer constructs an IngestServer for transport, draining
// accepted announcements through l.
func NewIngestServer(transport *Transport, l *listener.Listener) *IngestServer {
	return &IngestServer{transport: transport, l: l, log: logging.WithField("component", "demotransport-ingest")}
}

// NewHTTPServer returns an *http.Server serving the ingest endpoints on
// addr.
func (s *IngestServer) NewHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/pdp", s.handlePdp)
	mux.HandleFunc("/edp/pub", s.handleEdpPub)
	mux.HandleFunc("/edp/sub", s.handleEdpSub)
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 15 * time.Second}
}

func (s *IngestServer) handlePdp(w http.ResponseWriter, req *http.Request) {
	var r ingestRequest
	prefix, ok := s.decode(w, req, &r)
	if !ok {
		return
	}
	guid := ddb.Guid{Prefix: prefix, Entity: ddb.ParticipantEntityId}
	change := &ddb.CacheChange{
		WriterGuid:     guid,
		InstanceHandle: guid,
		SampleIdentity: ddb.SampleIdentity{WriterGuid: guid, SequenceNumber: r.Sequence},
	}
	if r.Disposed {
		change.Kind = ddb.KindDisposed
	} else {
		change.SerializedPayload = EncodeParticipant(ddb.ParticipantChangeData{
			MetatrafficLocators: r.MetatrafficLocators,
			IsClient:            r.IsClient,
			IsMyClient:          r.IsMyClient,
			IsMyServer:          r.IsMyServer,
		})
	}
	s.transport.pdpReader.Add(change)
	s.l.DrainPdp(s.transport.pdpReader)
	w.WriteHeader(http.StatusAccepted)
}

func (s *IngestServer) handleEdpPub(w http.ResponseWriter, req *http.Request) {
	s.handleEdp(w, req, s.transport.edpPubReader, ddb.EntityId{0, 0, 1, 0x02})
}

func (s *IngestServer) handleEdpSub(w http.ResponseWriter, req *http.Request) {
	s.handleEdp(w, req, s.transport.edpSubReader, ddb.EntityId{0, 0, 1, 0x04})
}

func (s *IngestServer) handleEdp(w http.ResponseWriter, req *http.Request, reader *History, defaultEntity ddb.EntityId) {
	var r ingestRequest
	prefix, ok := s.decode(w, req, &r)
	if !ok {
		return
	}
	entity := defaultEntity
	if r.EntityID != "" {
		b, err := hex.DecodeString(r.EntityID)
		if err != nil || len(b) != len(entity) {
			http.Error(w, "invalid entity_id", http.StatusBadRequest)
			return
		}
		copy(entity[:], b)
	}
	guid := ddb.Guid{Prefix: prefix, Entity: entity}
	change := &ddb.CacheChange{
		WriterGuid:     guid,
		InstanceHandle: guid,
		SampleIdentity: ddb.SampleIdentity{WriterGuid: guid, SequenceNumber: r.Sequence},
	}
	if r.Disposed {
		change.Kind = ddb.KindDisposed
	} else {
		change.SerializedPayload = EncodeTopic(r.Topic)
	}
	reader.Add(change)
	s.l.DrainEdp(reader)
	w.WriteHeader(http.StatusAccepted)
}

func (s *IngestServer) decode(w http.ResponseWriter, req *http.Request, r *ingestRequest) (ddb.GuidPrefix, bool) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return ddb.GuidPrefix{}, false
	}
	if err := json.NewDecoder(req.Body).Decode(r); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return ddb.GuidPrefix{}, false
	}
	prefix, err := ddb.ParseGuidPrefix(r.GuidPrefix)
	if err != nil {
		http.Error(w, "invalid guid_prefix", http.StatusBadRequest)
		return ddb.GuidPrefix{}, false
	}
	return prefix, true
}

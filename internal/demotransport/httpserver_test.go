package demotransport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meshdisco/discoveryd/internal/ddb"
	"github.com/meshdisco/discoveryd/internal/listener"
)

func TestIngestPdpDrainsIntoDDB(t *testing.T) {
	s := testPrefix(1)
	db := ddb.New(s, nil)
	tr := New(db)
	l := listener.New(db, ParticipantCodec{}, TopicCodec{}, tr.ReaderPool(), noopWaker{}, tr)
	ingest := NewIngestServer(tr, l)
	srv := httptest.NewServer(ingest.NewHTTPServer(":0").Handler)
	defer srv.Close()

	body, _ := json.Marshal(ingestRequest{GuidPrefix: testPrefix(2).String(), Sequence: 1, IsMyClient: true})
	resp, err := http.Post(srv.URL+"/pdp", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /pdp: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	db.ProcessPdpQueue()

	if len(tr.PdpReader().Entries()) != 0 {
		t.Fatal("ingested change must be drained out of the reader history")
	}
}

func TestIngestRejectsBadGuidPrefix(t *testing.T) {
	s := testPrefix(1)
	db := ddb.New(s, nil)
	tr := New(db)
	l := listener.New(db, ParticipantCodec{}, TopicCodec{}, tr.ReaderPool(), noopWaker{}, tr)
	ingest := NewIngestServer(tr, l)
	srv := httptest.NewServer(ingest.NewHTTPServer(":0").Handler)
	defer srv.Close()

	body, _ := json.Marshal(ingestRequest{GuidPrefix: "not-hex"})
	resp, err := http.Post(srv.URL+"/pdp", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /pdp: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

type noopWaker struct{}

func (noopWaker) Wake() {}

// Package filteradapter binds the DDB's three relevance predicates to the
// transport's per-writer filter shape, one adapter per PDP/EDP-pub/EDP-sub
// builtin writer (spec.md §9: "exposed as three separate callables ... the
// DDB does not care how the adapter layer is structured"). Structurally
// this mirrors the teacher's pattern of one small single-purpose adapter
// struct per consumer (controller/destination/listener.go's
// endpointListener implementing updateListener for one stream).
package filteradapter

import "github.com/meshdisco/discoveryd/internal/ddb"

// Filter is what a builtin writer consults, once per candidate reader, to
// decide whether a change in its history is still owed to that reader.
type Filter interface {
	IsRelevant(change *ddb.CacheChange, readerGuid ddb.Guid) bool
}

type pdpFilter struct{ db *ddb.DDB }

func (f pdpFilter) IsRelevant(change *ddb.CacheChange, readerGuid ddb.Guid) bool {
	return f.db.PdpIsRelevant(change, readerGuid)
}

// NewPdpFilter binds the PDP writer's filter to db.
func NewPdpFilter(db *ddb.DDB) Filter { return pdpFilter{db: db} }

type edpPubFilter struct{ db *ddb.DDB }

func (f edpPubFilter) IsRelevant(change *ddb.CacheChange, readerGuid ddb.Guid) bool {
	return f.db.EdpPubIsRelevant(change, readerGuid)
}

// NewEdpPubFilter binds the EDP publications writer's filter to db.
func NewEdpPubFilter(db *ddb.DDB) Filter { return edpPubFilter{db: db} }

type edpSubFilter struct{ db *ddb.DDB }

func (f edpSubFilter) IsRelevant(change *ddb.CacheChange, readerGuid ddb.Guid) bool {
	return f.db.EdpSubIsRelevant(change, readerGuid)
}

// NewEdpSubFilter binds the EDP subscriptions writer's filter to db.
func NewEdpSubFilter(db *ddb.DDB) Filter { return edpSubFilter{db: db} }

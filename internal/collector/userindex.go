package collector

import "github.com/ridgeline-labs/chainrunner/internal/state"

// UserIndex supplies the candidate borrower addresses to health-check
// for a given asset. spec.md §9 flags this as an open question: the
// original source's collector stub returns an empty list; the actual
// indexing source (event indexer, subgraph, replayed liquidation-call
// logs) is an external collaborator. This interface is the seam where
// that collaborator plugs in, mirroring the injectable PriceProvider
// interface in the teacher's arbitrage detector.
type UserIndex interface {
	CandidateUsers(asset state.Address) []state.Address
}

// StaticUserIndex is the default UserIndex: a fixed watch-list built
// from the map passed to NewStaticUserIndex. It never grows at runtime; a production
// deployment replaces it with a subgraph- or indexer-backed
// implementation.
type StaticUserIndex struct {
	byAsset map[state.Address][]state.Address
}

// NewStaticUserIndex builds an index from a pre-populated watch-list.
func NewStaticUserIndex(watchList map[state.Address][]state.Address) *StaticUserIndex {
	if watchList == nil {
		watchList = make(map[state.Address][]state.Address)
	}
	return &StaticUserIndex{byAsset: watchList}
}

func (s *StaticUserIndex) CandidateUsers(asset state.Address) []state.Address {
	return s.byAsset[asset]
}

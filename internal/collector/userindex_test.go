package collector

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestStaticUserIndex(t *testing.T) {
	asset := common.HexToAddress("0x1")
	user := common.HexToAddress("0x2")

	idx := NewStaticUserIndex(map[common.Address][]common.Address{
		asset: {user},
	})

	assert.Equal(t, []common.Address{user}, idx.CandidateUsers(asset))
	assert.Nil(t, idx.CandidateUsers(common.HexToAddress("0x3")))
}

func TestStaticUserIndexNilWatchList(t *testing.T) {
	idx := NewStaticUserIndex(nil)
	assert.Nil(t, idx.CandidateUsers(common.HexToAddress("0x1")))
}

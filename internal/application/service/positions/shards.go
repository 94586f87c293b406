package positions

import (
	"sort"
	"sync"

	domain "github.com/shirish73/equityms/internal/domain/entity/positions"

	"github.com/cespare/xxhash/v2"
)

type tradeEntry struct {
	state domain.TradeState
	// busy marks a submission between reserve and apply/release.
	busy bool
}

type tradeShard struct {
	mu     sync.Mutex
	trades map[int64]*tradeEntry
}

type bookShard struct {
	mu        sync.RWMutex
	positions map[string]int64
}

func newTradeShards(n int) []*tradeShard {
	shards := make([]*tradeShard, n)
	for i := range shards {
		shards[i] = &tradeShard{trades: make(map[int64]*tradeEntry)}
	}
	return shards
}

func newBookShards(n int) []*bookShard {
	shards := make([]*bookShard, n)
	for i := range shards {
		shards[i] = &bookShard{positions: make(map[string]int64)}
	}
	return shards
}

func (s *Service) tradeShard(tradeID int64) *tradeShard {
	return s.trades[uint64(tradeID)%uint64(len(s.trades))]
}

func (s *Service) bookIndex(securityCode string) int {
	return int(xxhash.Sum64String(securityCode) % uint64(len(s.books)))
}

func (s *Service) bookShard(securityCode string) *bookShard {
	return s.books[s.bookIndex(securityCode)]
}

// lockBooks write-locks the distinct shards touched by deltas in ascending
// index order and returns the locked indexes.
func (s *Service) lockBooks(deltas []domain.Delta) []int {
	idx := make([]int, 0, len(deltas))
	for _, d := range deltas {
		i := s.bookIndex(d.SecurityCode)
		dup := false
		for _, j := range idx {
			if j == i {
				dup = true
				break
			}
		}
		if !dup {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	for _, i := range idx {
		s.books[i].mu.Lock()
	}
	return idx
}

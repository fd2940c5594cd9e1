package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	"github.com/easycoin-labs/agent-server/pkg/database/query"
)

type ById []*ledger.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

type store struct {
	mu      sync.RWMutex
	records []*ledger.Record
	last    uint64
}

func New() ledger.Store {
	return &store{}
}

func (s *store) Save(_ context.Context, data *ledger.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last++
	if item := s.find(data); item != nil {
		if item.Version != data.Version {
			return ledger.ErrStaleVersion
		}

		data.Version++
		data.Id = item.Id

		item.SubAccounts = data.Clone().SubAccounts
		item.Version = data.Version
	} else {
		if data.Id == 0 {
			data.Id = s.last
		}
		if data.CreatedAt.IsZero() {
			data.CreatedAt = time.Now()
		}
		data.Version++

		c := data.Clone()
		s.records = append(s.records, &c)
	}

	return nil
}

func (s *store) Get(_ context.Context, owner string) (*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findByOwner(owner)
	if item == nil {
		return nil, ledger.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) Delete(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.records {
		if item.Owner == owner {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (s *store) GetAllWithDueFee(_ context.Context, minDueFee uint64, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.findWithDueFee(minDueFee)
	if len(items) == 0 {
		return nil, ledger.ErrNotFound
	}

	res := s.filter(items, cursor, limit, direction)
	if len(res) == 0 {
		return nil, ledger.ErrNotFound
	}
	return res, nil
}

func (s *store) find(data *ledger.Record) *ledger.Record {
	for _, item := range s.records {
		if item.Id == data.Id {
			return item
		}
		if item.Owner == data.Owner {
			return item
		}
	}
	return nil
}

func (s *store) findByOwner(owner string) *ledger.Record {
	for _, item := range s.records {
		if item.Owner == owner {
			return item
		}
	}
	return nil
}

func (s *store) findWithDueFee(minDueFee uint64) []*ledger.Record {
	var res []*ledger.Record
	for _, item := range s.records {
		for _, subAccount := range item.SubAccounts {
			if subAccount.DueFee >= minDueFee && subAccount.DueFee > 0 {
				res = append(res, item)
				break
			}
		}
	}
	return res
}

func (s *store) filter(items []*ledger.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*ledger.Record {
	var start uint64

	start = 0
	if direction == query.Descending {
		start = s.last + 1
	}
	if len(cursor) > 0 {
		start = cursor.ToUint64()
	}

	var res []*ledger.Record
	for _, item := range items {
		if item.Id > start && direction == query.Ascending {
			res = append(res, item)
		}
		if item.Id < start && direction == query.Descending {
			res = append(res, item)
		}
	}

	if direction == query.Descending {
		sort.Sort(sort.Reverse(ById(res)))
	}

	if len(res) >= int(limit) {
		res = res[:limit]
	}

	return cloneRecords(res)
}

func cloneRecords(items []*ledger.Record) []*ledger.Record {
	var res []*ledger.Record
	for _, item := range items {
		cloned := item.Clone()
		res = append(res, &cloned)
	}
	return res
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee"
)

type store struct {
	mu      sync.RWMutex
	records []*fee.Record
	last    uint64
}

func New() fee.Store {
	return &store{}
}

func (s *store) Save(_ context.Context, data *fee.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last++
	if item := s.find(data); item != nil {
		if item.Version != data.Version {
			return fee.ErrStaleVersion
		}

		data.Version++
		data.Id = item.Id

		item.Fees = data.Fees
		item.Collectors = data.Clone().Collectors
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

func (s *store) Get(_ context.Context, address string) (*fee.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findByAddress(address)
	if item == nil {
		return nil, fee.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) find(data *fee.Record) *fee.Record {
	for _, item := range s.records {
		if item.Id == data.Id {
			return item
		}
		if item.Address == data.Address {
			return item
		}
	}
	return nil
}

func (s *store) findByAddress(address string) *fee.Record {
	for _, item := range s.records {
		if item.Address == address {
			return item
		}
	}
	return nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}

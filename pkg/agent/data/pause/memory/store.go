package memory

import (
	"context"
	"sync"
	"time"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/pause"
)

type store struct {
	mu      sync.RWMutex
	records []*pause.Record
	last    uint64
}

func New() pause.Store {
	return &store{}
}

func (s *store) Save(_ context.Context, data *pause.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last++
	if item := s.find(data); item != nil {
		if item.Version != data.Version {
			return pause.ErrStaleVersion
		}

		data.Version++
		data.Id = item.Id

		item.Pauser = data.Pauser
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

func (s *store) Get(_ context.Context, address string) (*pause.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findByAddress(address)
	if item == nil {
		return nil, pause.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) find(data *pause.Record) *pause.Record {
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

func (s *store) findByAddress(address string) *pause.Record {
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

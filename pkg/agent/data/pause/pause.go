package pause

import (
	"errors"
	"time"
)

// Record holds the designated pauser identity, separate from the
// administrative authority.
type Record struct {
	Id uint64

	Address string

	Pauser string

	Version uint64

	CreatedAt time.Time
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Address: r.Address,

		Pauser: r.Pauser,

		Version: r.Version,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Address = r.Address

	dst.Pauser = r.Pauser

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
}

func (r *Record) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Pauser) == 0 {
		return errors.New("pauser is required")
	}

	return nil
}

package pumpfun

import (
	"bytes"
	"encoding/binary"
)

// sha256("account:BondingCurve")[:8]
var bondingCurveAccountDiscriminator = []byte{
	23, 183, 248, 55, 96, 216, 172, 96,
}

const BondingCurveAccountSize = 8 + 5*8 + 1

type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

func (c *BondingCurve) Marshal() []byte {
	b := make([]byte, BondingCurveAccountSize)

	copy(b, bondingCurveAccountDiscriminator)
	binary.LittleEndian.PutUint64(b[8:], c.VirtualTokenReserves)
	binary.LittleEndian.PutUint64(b[16:], c.VirtualSolReserves)
	binary.LittleEndian.PutUint64(b[24:], c.RealTokenReserves)
	binary.LittleEndian.PutUint64(b[32:], c.RealSolReserves)
	binary.LittleEndian.PutUint64(b[40:], c.TokenTotalSupply)
	if c.Complete {
		b[48] = 1
	}

	return b
}

func (c *BondingCurve) Unmarshal(b []byte) bool {
	if len(b) < BondingCurveAccountSize {
		return false
	}
	if !bytes.HasPrefix(b, bondingCurveAccountDiscriminator) {
		return false
	}

	c.VirtualTokenReserves = binary.LittleEndian.Uint64(b[8:])
	c.VirtualSolReserves = binary.LittleEndian.Uint64(b[16:])
	c.RealTokenReserves = binary.LittleEndian.Uint64(b[24:])
	c.RealSolReserves = binary.LittleEndian.Uint64(b[32:])
	c.TokenTotalSupply = binary.LittleEndian.Uint64(b[40:])
	c.Complete = b[48] == 1

	return true
}

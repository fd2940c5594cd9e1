package pumpfun

import (
	"bytes"
	"encoding/binary"

	"github.com/easycoin-labs/agent-server/pkg/solana"
)

// ProgramKey is the address of the pump.fun bonding curve program.
//
// Current key: 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P
var ProgramKey = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

var (
	buyInstructionDiscriminator = []byte{
		102, 6, 61, 18, 1, 218, 235, 234,
	}
	sellInstructionDiscriminator = []byte{
		51, 230, 133, 164, 1, 127, 131, 173,
	}
)

// Account positions within a buy or sell instruction.
const (
	TradeBondingCurveIndex     = 3
	TradeUserTokenAccountIndex = 5
	TradeUserAccountIndex      = 6
	TradeMinAccounts           = 7
)

type TradeType uint8

const (
	TradeTypeUnknown TradeType = iota
	TradeTypeBuy
	TradeTypeSell
)

// GetTradeType classifies a pump.fun instruction by its discriminator.
func GetTradeType(ixn solana.Instruction) (TradeType, error) {
	if !bytes.Equal(ixn.Program, ProgramKey) {
		return TradeTypeUnknown, solana.ErrIncorrectProgram
	}
	if len(ixn.Data) < 8 {
		return TradeTypeUnknown, solana.ErrIncorrectInstruction
	}

	switch {
	case bytes.HasPrefix(ixn.Data, buyInstructionDiscriminator):
		return TradeTypeBuy, nil
	case bytes.HasPrefix(ixn.Data, sellInstructionDiscriminator):
		return TradeTypeSell, nil
	default:
		return TradeTypeUnknown, solana.ErrIncorrectInstruction
	}
}

type TradeInstructionArgs struct {
	// The token amount being bought or sold.
	Amount uint64
	// For a buy, the maximum lamports to spend. For a sell, the minimum
	// lamports to receive.
	SolThreshold uint64
}

// PutTradeArgs overwrites the argument section of a buy or sell
// instruction's data in place. The discriminator is preserved.
func PutTradeArgs(data []byte, args *TradeInstructionArgs) error {
	if len(data) != 8+2*8 {
		return solana.ErrIncorrectInstruction
	}

	binary.LittleEndian.PutUint64(data[8:], args.Amount)
	binary.LittleEndian.PutUint64(data[16:], args.SolThreshold)
	return nil
}

// GetTradeArgs parses the argument section of a buy or sell instruction.
func GetTradeArgs(data []byte) (*TradeInstructionArgs, error) {
	if len(data) != 8+2*8 {
		return nil, solana.ErrIncorrectInstruction
	}

	return &TradeInstructionArgs{
		Amount:       binary.LittleEndian.Uint64(data[8:]),
		SolThreshold: binary.LittleEndian.Uint64(data[16:]),
	}, nil
}

package jupiter

import (
	"bytes"

	"github.com/easycoin-labs/agent-server/pkg/solana"
)

// ProgramKey is the address of the Jupiter v6 aggregator program.
//
// Current key: JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4
var ProgramKey = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")

var (
	routeInstructionDiscriminator = []byte{
		229, 23, 203, 151, 122, 227, 173, 42,
	}
	sharedAccountsRouteInstructionDiscriminator = []byte{
		193, 32, 155, 51, 65, 214, 156, 129,
	}
)

// Account positions within a route instruction.
//
// Reference: https://station.jup.ag/docs/apis/swap-api
const (
	RouteUserTransferAuthorityIndex   = 1
	RouteSourceTokenAccountIndex      = 2
	RouteUserDestinationAccountIndex  = 3
	RouteDestinationTokenAccountIndex = 4
	RouteMinAccounts                  = 5
)

type RouteType uint8

const (
	RouteTypeUnknown RouteType = iota
	RouteTypeRoute
	RouteTypeSharedAccountsRoute
)

// GetRouteType classifies a Jupiter instruction by its discriminator.
func GetRouteType(ixn solana.Instruction) (RouteType, error) {
	if !bytes.Equal(ixn.Program, ProgramKey) {
		return RouteTypeUnknown, solana.ErrIncorrectProgram
	}
	if len(ixn.Data) < 8 {
		return RouteTypeUnknown, solana.ErrIncorrectInstruction
	}

	switch {
	case bytes.HasPrefix(ixn.Data, routeInstructionDiscriminator):
		return RouteTypeRoute, nil
	case bytes.HasPrefix(ixn.Data, sharedAccountsRouteInstructionDiscriminator):
		return RouteTypeSharedAccountsRoute, nil
	default:
		return RouteTypeUnknown, solana.ErrIncorrectInstruction
	}
}

package token

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/easycoin-labs/agent-server/pkg/solana"
	"github.com/easycoin-labs/agent-server/pkg/solana/system"
)

// ProgramKey is the address of the token program that should be used.
//
// Current key: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
var ProgramKey = ed25519.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

type Command byte

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L16
const (
	// nolint:varcheck,deadcode,unused
	CommandInitializeMint Command = iota
	CommandInitializeAccount
	// nolint:varcheck,deadcode,unused
	CommandInitializeMultisig
	CommandTransfer
	// nolint:varcheck,deadcode,unused
	CommandApprove
	// nolint:varcheck,deadcode,unused
	CommandRevoke
	// nolint:varcheck,deadcode,unused
	CommandSetAuthority
	// nolint:varcheck,deadcode,unused
	CommandMintTo
	// nolint:varcheck,deadcode,unused
	CommandBurn
	CommandCloseAccount
	// nolint:varcheck,deadcode,unused
	CommandFreezeAccount
	// nolint:varcheck,deadcode,unused
	CommandThawAccount
	// nolint:varcheck,deadcode,unused
	CommandTransferChecked
	// nolint:varcheck,deadcode,unused
	CommandApproveChecked
	// nolint:varcheck,deadcode,unused
	CommandMintToChecked
	// nolint:varcheck,deadcode,unused
	CommandBurnChecked
	// nolint:varcheck,deadcode,unused
	CommandInitializeAccount2
	CommandSyncNative

	CommandUnknown = Command(math.MaxUint8)
)

// GetCommand returns the token program command encoded in the instruction,
// or ErrIncorrectProgram if the instruction targets another program.
func GetCommand(ixn solana.Instruction) (Command, error) {
	if !bytes.Equal(ixn.Program, ProgramKey) {
		return CommandUnknown, solana.ErrIncorrectProgram
	}
	if len(ixn.Data) == 0 {
		return CommandUnknown, errors.New("token instruction missing data")
	}

	return Command(ixn.Data[0]), nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L41-L55
func InitializeAccount(account, mint, owner ed25519.PublicKey) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]`  The account to initialize.
	//   1. `[]` The mint this account will be associated with.
	//   2. `[]` The new account's owner/multisignature.
	//   3. `[]` Rent sysvar
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandInitializeAccount)},
		solana.NewAccountMeta(account, true),
		solana.NewReadonlyAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(owner, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

type DecompiledInitializeAccount struct {
	Account ed25519.PublicKey
	Mint    ed25519.PublicKey
	Owner   ed25519.PublicKey
}

func DecompileInitializeAccount(ixn solana.Instruction) (*DecompiledInitializeAccount, error) {
	if !bytes.Equal(ixn.Program, ProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}
	if !bytes.Equal([]byte{byte(CommandInitializeAccount)}, ixn.Data) {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(ixn.Accounts) != 4 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ixn.Accounts))
	}
	if !bytes.Equal(system.RentSysVar, ixn.Accounts[3].PublicKey) {
		return nil, errors.Errorf("invalid rent program")
	}

	return &DecompiledInitializeAccount{
		Account: ixn.Accounts[0].PublicKey,
		Mint:    ixn.Accounts[1].PublicKey,
		Owner:   ixn.Accounts[2].PublicKey,
	}, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L76-L91
func Transfer(source, dest, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   * Single owner/delegate
	//   0. `[writable]` The source account.
	//   1. `[writable]` The destination account.
	//   2. `[signer]` The source account's owner/delegate.
	data := make([]byte, 1+8)
	data[0] = byte(CommandTransfer)
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(source, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledTransfer struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
	Amount      uint64
}

func DecompileTransfer(ixn solana.Instruction) (*DecompiledTransfer, error) {
	if !bytes.Equal(ixn.Program, ProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}
	if !bytes.HasPrefix(ixn.Data, []byte{byte(CommandTransfer)}) {
		return nil, solana.ErrIncorrectInstruction
	}
	// note: we do < 3 instead of != 3 in order to support multisig cases.
	if len(ixn.Accounts) < 3 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ixn.Accounts))
	}
	if len(ixn.Data) != 9 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ixn.Data))
	}

	v := &DecompiledTransfer{
		Source:      ixn.Accounts[0].PublicKey,
		Destination: ixn.Accounts[1].PublicKey,
		Owner:       ixn.Accounts[2].PublicKey,
	}
	v.Amount = binary.LittleEndian.Uint64(ixn.Data[1:])
	return v, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L183-L197
func CloseAccount(account, dest, owner ed25519.PublicKey) solana.Instruction {
	// Close an account by transferring all its SOL to the destination account.
	// Non-native accounts may only be closed if its token amount is zero.
	//
	// Accounts expected by this instruction:
	//
	//   * Single owner
	//   0. `[writable]` The account to close.
	//   1. `[writable]` The destination account.
	//   2. `[signer]` The account's owner.
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandCloseAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledCloseAccount struct {
	Account     ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
}

func DecompileCloseAccount(ixn solana.Instruction) (*DecompiledCloseAccount, error) {
	if !bytes.Equal(ixn.Program, ProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}
	if !bytes.Equal(ixn.Data, []byte{byte(CommandCloseAccount)}) {
		return nil, solana.ErrIncorrectInstruction
	}
	// note: we do < 3 instead of != 3 in order to support multisig cases.
	if len(ixn.Accounts) < 3 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ixn.Accounts))
	}

	v := &DecompiledCloseAccount{
		Account:     ixn.Accounts[0].PublicKey,
		Destination: ixn.Accounts[1].PublicKey,
		Owner:       ixn.Accounts[2].PublicKey,
	}
	return v, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L411-L422
func SyncNative(account ed25519.PublicKey) solana.Instruction {
	// Given a native token account, updates its amount field based
	// on the account's underlying lamports.
	//
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The native token account to sync with its
	//      underlying lamports.
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandSyncNative)},
		solana.NewAccountMeta(account, false),
	)
}

type DecompiledSyncNative struct {
	Account ed25519.PublicKey
}

func DecompileSyncNative(ixn solana.Instruction) (*DecompiledSyncNative, error) {
	if !bytes.Equal(ixn.Program, ProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}
	if !bytes.Equal(ixn.Data, []byte{byte(CommandSyncNative)}) {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(ixn.Accounts) != 1 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ixn.Accounts))
	}

	return &DecompiledSyncNative{
		Account: ixn.Accounts[0].PublicKey,
	}, nil
}

package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/easycoin-labs/agent-server/pkg/solana"
)

var ProgramKey [32]byte

const (
	commandCreateAccount uint32 = iota
	// nolint:varcheck,deadcode,unused
	commandAssign
	commandTransfer
)

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE, SIGNER] New account
	//
	// CreateAccount {
	//   // Number of lamports to transfer to the new account
	//   lamports: u64,
	//   // Number of bytes of memory to allocate
	//   space: u64,
	//
	//   //Address of program that will own the new account
	//   owner: Pubkey,
	// }
	//
	data := make([]byte, 4+2*8+32)
	binary.LittleEndian.PutUint32(data, commandCreateAccount)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[4+8:], size)
	copy(data[4+2*8:], owner)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func DecompileCreateAccount(ixn solana.Instruction) (*DecompiledCreateAccount, error) {
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], commandCreateAccount)

	if !bytes.Equal(ixn.Program, ProgramKey[:]) {
		return nil, solana.ErrIncorrectProgram
	}
	if !bytes.HasPrefix(ixn.Data, prefix[:]) {
		return nil, solana.ErrIncorrectInstruction
	}

	if len(ixn.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ixn.Accounts))
	}
	if len(ixn.Data) != 52 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ixn.Data))
	}

	v := &DecompiledCreateAccount{
		Funder:  ixn.Accounts[0].PublicKey,
		Address: ixn.Accounts[1].PublicKey,
	}
	v.Lamports = binary.LittleEndian.Uint64(ixn.Data[4:])
	v.Size = binary.LittleEndian.Uint64(ixn.Data[4+8:])
	v.Owner = make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(v.Owner, ixn.Data[4+2*8:])

	return v, nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L74-L81
func Transfer(sender, recipient ed25519.PublicKey, lamports uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE] Recipient account
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data, commandTransfer)
	binary.LittleEndian.PutUint64(data[4:], lamports)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(sender, true),
		solana.NewAccountMeta(recipient, false),
	)
}

type DecompiledTransfer struct {
	Sender    ed25519.PublicKey
	Recipient ed25519.PublicKey
	Lamports  uint64
}

func DecompileTransfer(ixn solana.Instruction) (*DecompiledTransfer, error) {
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], commandTransfer)

	if !bytes.Equal(ixn.Program, ProgramKey[:]) {
		return nil, solana.ErrIncorrectProgram
	}
	if !bytes.HasPrefix(ixn.Data, prefix[:]) {
		return nil, solana.ErrIncorrectInstruction
	}

	if len(ixn.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ixn.Accounts))
	}
	if len(ixn.Data) != 12 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ixn.Data))
	}

	return &DecompiledTransfer{
		Sender:    ixn.Accounts[0].PublicKey,
		Recipient: ixn.Accounts[1].PublicKey,
		Lamports:  binary.LittleEndian.Uint64(ixn.Data[4:]),
	}, nil
}

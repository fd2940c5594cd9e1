package memory

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/easycoin-labs/agent-server/pkg/agent/chain"
	"github.com/easycoin-labs/agent-server/pkg/pointer"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	"github.com/easycoin-labs/agent-server/pkg/solana/system"
	"github.com/easycoin-labs/agent-server/pkg/solana/token"
)

func handleSystem(st *State, ixn solana.Instruction) error {
	if transfer, err := system.DecompileTransfer(ixn); err == nil {
		if !st.IsSigner(transfer.Sender) {
			return chain.ErrMissingSignature
		}

		if err := st.Debit(transfer.Sender, transfer.Lamports); err != nil {
			return err
		}
		return st.Credit(transfer.Recipient, transfer.Lamports)
	}

	if create, err := system.DecompileCreateAccount(ixn); err == nil {
		if !st.IsSigner(create.Funder) || !st.IsSigner(create.Address) {
			return chain.ErrMissingSignature
		}

		if err := st.Debit(create.Funder, create.Lamports); err != nil {
			return err
		}
		return st.CreateAccount(create.Address, create.Owner, create.Lamports, create.Size)
	}

	return solana.ErrIncorrectInstruction
}

func handleToken(st *State, ixn solana.Instruction) error {
	command, err := token.GetCommand(ixn)
	if err != nil {
		return err
	}

	switch command {
	case token.CommandInitializeAccount:
		return handleTokenInitializeAccount(st, ixn)
	case token.CommandTransfer:
		return handleTokenTransfer(st, ixn)
	case token.CommandCloseAccount:
		return handleTokenCloseAccount(st, ixn)
	case token.CommandSyncNative:
		return handleTokenSyncNative(st, ixn)
	default:
		return solana.ErrIncorrectInstruction
	}
}

func handleTokenInitializeAccount(st *State, ixn solana.Instruction) error {
	initialize, err := token.DecompileInitializeAccount(ixn)
	if err != nil {
		return err
	}

	data, ok := st.Data(initialize.Account)
	if !ok || len(data) != token.AccountSize {
		return chain.ErrInvalidTokenAccount
	}
	if !bytes.Equal(data, make([]byte, token.AccountSize)) {
		return errors.New("token account already initialized")
	}

	rent := system.RentExemptMinimum(token.AccountSize)
	if st.Lamports(initialize.Account) < rent {
		return chain.ErrBelowRentFloor
	}

	tokenAccount := token.Account{
		Mint:  initialize.Mint,
		Owner: initialize.Owner,
		State: token.AccountStateInitialized,
	}
	if token.IsNativeMint(initialize.Mint) {
		tokenAccount.IsNative = pointer.Uint64(rent)
		tokenAccount.Amount = st.Lamports(initialize.Account) - rent
	}

	st.SetData(initialize.Account, tokenAccount.Marshal())
	return nil
}

func handleTokenTransfer(st *State, ixn solana.Instruction) error {
	transfer, err := token.DecompileTransfer(ixn)
	if err != nil {
		return err
	}

	source, err := getTokenAccount(st, transfer.Source)
	if err != nil {
		return err
	}
	destination, err := getTokenAccount(st, transfer.Destination)
	if err != nil {
		return err
	}

	if !bytes.Equal(source.Owner, transfer.Owner) {
		return errors.New("authority does not own the source account")
	}
	if !st.IsSigner(transfer.Owner) {
		return chain.ErrMissingSignature
	}
	if !bytes.Equal(source.Mint, destination.Mint) {
		return errors.New("mint mismatch")
	}
	if source.Amount < transfer.Amount {
		return chain.ErrInsufficientFunds
	}

	source.Amount -= transfer.Amount
	destination.Amount += transfer.Amount

	st.SetData(transfer.Source, source.Marshal())
	st.SetData(transfer.Destination, destination.Marshal())

	if source.IsNative != nil && destination.IsNative != nil {
		if err := st.Debit(transfer.Source, transfer.Amount); err != nil {
			return err
		}
		return st.Credit(transfer.Destination, transfer.Amount)
	}
	return nil
}

func handleTokenCloseAccount(st *State, ixn solana.Instruction) error {
	closeAccount, err := token.DecompileCloseAccount(ixn)
	if err != nil {
		return err
	}

	tokenAccount, err := getTokenAccount(st, closeAccount.Account)
	if err != nil {
		return err
	}

	if !bytes.Equal(tokenAccount.Owner, closeAccount.Owner) {
		return errors.New("authority does not own the account")
	}
	if !st.IsSigner(closeAccount.Owner) {
		return chain.ErrMissingSignature
	}
	if tokenAccount.IsNative == nil && tokenAccount.Amount > 0 {
		return errors.New("token account balance is not zero")
	}

	lamports := st.Lamports(closeAccount.Account)
	st.CloseAccount(closeAccount.Account)
	return st.Credit(closeAccount.Destination, lamports)
}

func handleTokenSyncNative(st *State, ixn solana.Instruction) error {
	syncNative, err := token.DecompileSyncNative(ixn)
	if err != nil {
		return err
	}

	tokenAccount, err := getTokenAccount(st, syncNative.Account)
	if err != nil {
		return err
	}

	if tokenAccount.IsNative == nil {
		return errors.New("token account is not native")
	}

	tokenAccount.Amount = st.Lamports(syncNative.Account) - *tokenAccount.IsNative
	st.SetData(syncNative.Account, tokenAccount.Marshal())
	return nil
}

func handleAssociatedTokenAccount(st *State, ixn solana.Instruction) error {
	create, err := token.DecompileCreateAssociatedAccountIdempotent(ixn)
	if err != nil {
		return err
	}

	expected, err := token.GetAssociatedAccount(create.Owner, create.Mint)
	if err != nil {
		return err
	}
	if !bytes.Equal(expected, create.Address) {
		return errors.New("associated account address mismatch")
	}

	// Idempotent: an already initialized account is left untouched
	if _, err := getTokenAccount(st, create.Address); err == nil {
		return nil
	}

	if !st.IsSigner(create.Subsidizer) {
		return chain.ErrMissingSignature
	}

	rent := system.RentExemptMinimum(token.AccountSize)
	if err := st.Debit(create.Subsidizer, rent); err != nil {
		return err
	}
	if err := st.CreateAccount(create.Address, token.ProgramKey, rent, token.AccountSize); err != nil {
		return err
	}

	tokenAccount := token.Account{
		Mint:  create.Mint,
		Owner: create.Owner,
		State: token.AccountStateInitialized,
	}
	if token.IsNativeMint(create.Mint) {
		tokenAccount.IsNative = pointer.Uint64(rent)
	}

	st.SetData(create.Address, tokenAccount.Marshal())
	return nil
}

func getTokenAccount(st *State, key ed25519.PublicKey) (*token.Account, error) {
	data, ok := st.Data(key)
	if !ok {
		return nil, chain.ErrAccountNotFound
	}

	var tokenAccount token.Account
	if !tokenAccount.Unmarshal(data) {
		return nil, chain.ErrInvalidTokenAccount
	}
	if tokenAccount.State != token.AccountStateInitialized {
		return nil, chain.ErrInvalidTokenAccount
	}
	return &tokenAccount, nil
}

package mempool

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrAlreadyImported is returned when adding a transaction whose hash is already resident.
	ErrAlreadyImported = errors.New("transaction already imported")

	// ErrTooCheapToEnter is returned when the pool or the sender's slots are full and the
	// transaction does not outrank the entry it would have to evict.
	ErrTooCheapToEnter = errors.New("transaction too cheap to enter the pool")

	// ErrTooCheapToReplace is returned when a transaction collides with a resident one at
	// the same sender and nonce and the scoring rejects the replacement.
	ErrTooCheapToReplace = errors.New("transaction too cheap to replace existing one")

	// ErrInvalidChoice is returned when the scoring asks to insert alongside a transaction
	// occupying the same slot.
	ErrInvalidChoice = errors.New("scoring chose to insert into an occupied slot")

	// ErrNoVerifier is returned by Import on a pool constructed without a verifier.
	ErrNoVerifier = errors.New("pool has no verifier")
)

// AlreadyImportedError carries the hash of a duplicate submission.
type AlreadyImportedError struct {
	Hash common.Hash
}

func (e *AlreadyImportedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrAlreadyImported, e.Hash.Hex())
}

func (e *AlreadyImportedError) Is(target error) bool { return target == ErrAlreadyImported }

// TooCheapToEnterError carries the hash of the rejected transaction.
type TooCheapToEnterError struct {
	Hash common.Hash
}

func (e *TooCheapToEnterError) Error() string {
	return fmt.Sprintf("%v: %s", ErrTooCheapToEnter, e.Hash.Hex())
}

func (e *TooCheapToEnterError) Is(target error) bool { return target == ErrTooCheapToEnter }

// TooCheapToReplaceError carries the resident (Old) and rejected (New) hashes.
type TooCheapToReplaceError struct {
	Old common.Hash
	New common.Hash
}

func (e *TooCheapToReplaceError) Error() string {
	return fmt.Sprintf("%v: %s by %s", ErrTooCheapToReplace, e.Old.Hex(), e.New.Hex())
}

func (e *TooCheapToReplaceError) Is(target error) bool { return target == ErrTooCheapToReplace }

// Package contract implements the scripted contract sandbox of section 4.6:
// a single-threaded, deterministic host surface that a deployed contract's
// WASM bytecode calls into via wasmer-go, running inline inside the
// enclosing operation's undo session so sandbox writes participate in the
// same commit/discard lifecycle as native evaluators.
package contract

import "gamebankcore/core/types"

// Host is the ~10-entry surface section 4.6 exposes to scripts. Every
// method must be deterministic and side-effect-free beyond the object
// store: no wall-clock reads, no randomness that isn't chain-derived, no
// external I/O.
type Host interface {
	HeadBlockNum() uint64
	GetBlockHash(blockNum uint64, count, interval uint32) ([20]byte, error)

	GetName() string
	GetCaller() string
	GetCreator() string

	GetData() (map[string]any, error)
	GetUserData(user string) (map[string]any, error)

	Transfer(from, to string, amount types.Asset) error
	Emit(key string, table map[string]any) error
	JSONStrToTable(s string) (map[string]any, error)
}

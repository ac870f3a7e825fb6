package contract

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // section 4.6 names ripemd160 explicitly

	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

// BlockHashSource supplies the block digests get_block_hash iterates over;
// the controller wires this to its block log (component B) once a block
// has been durably appended.
type BlockHashSource interface {
	BlockDigestAt(blockNum uint64) ([32]byte, bool)
}

// Sandbox is the concrete Host: it borrows the enclosing evaluator's object
// store session so every host call reads and writes through the same undo
// session as the native evaluator that invoked contract_call.
type Sandbox struct {
	RW         objectstore.RW
	HeadBlock  uint64
	Hashes     BlockHashSource
	Contract   string
	Caller     string
	Creator    string

	loadedOwn  map[string]any
	loadedUser map[string]map[string]any
	dirtyUser  map[string]bool
	dirtyOwn   bool
	Logs       []ContractLog
}

// ContractLog is one contract.emit or contract.transfer record, surfaced to
// the block's event stream the way native evaluators emit virtual ops.
type ContractLog struct {
	Key   string
	Table map[string]any
}

func NewSandbox(rw objectstore.RW, headBlock uint64, hashes BlockHashSource, contractName, caller, creator string) *Sandbox {
	return &Sandbox{
		RW:         rw,
		HeadBlock:  headBlock,
		Hashes:     hashes,
		Contract:   contractName,
		Caller:     caller,
		Creator:    creator,
		loadedUser: make(map[string]map[string]any),
		dirtyUser:  make(map[string]bool),
	}
}

func (s *Sandbox) HeadBlockNum() uint64 { return s.HeadBlock }

// GetBlockHash computes an iterated ripemd160 over count block digests
// spaced by interval, starting at blockNum and stepping back, exactly as
// section 4.6 specifies.
func (s *Sandbox) GetBlockHash(blockNum uint64, count, interval uint32) ([20]byte, error) {
	if count < 1 || count > 100 {
		return [20]byte{}, fmt.Errorf("contract: get_block_hash: count %d out of range [1,100]", count)
	}
	if blockNum < uint64(count) {
		return [20]byte{}, fmt.Errorf("contract: get_block_hash: block_num %d is less than count %d", blockNum, count)
	}
	if interval < 1 || interval > count {
		return [20]byte{}, fmt.Errorf("contract: get_block_hash: interval %d out of range [1,%d]", interval, count)
	}
	h := ripemd160.New()
	cursor := blockNum
	for i := uint32(0); i < count; i++ {
		digest, ok := s.Hashes.BlockDigestAt(cursor)
		if !ok {
			return [20]byte{}, fmt.Errorf("contract: get_block_hash: block %d not found", cursor)
		}
		h.Write(digest[:])
		if cursor < uint64(interval) {
			break
		}
		cursor -= uint64(interval)
	}
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func (s *Sandbox) GetName() string    { return s.Contract }
func (s *Sandbox) GetCaller() string  { return s.Caller }
func (s *Sandbox) GetCreator() string { return s.Creator }

func (s *Sandbox) GetData() (map[string]any, error) {
	if s.loadedOwn != nil {
		return s.loadedOwn, nil
	}
	u, ok, err := state.GetContractUser(s.RW, s.Contract, s.Contract)
	if err != nil {
		return nil, err
	}
	table, err := decodeTable(u, ok)
	if err != nil {
		return nil, err
	}
	s.loadedOwn = table
	return table, nil
}

func (s *Sandbox) GetUserData(user string) (map[string]any, error) {
	if t, ok := s.loadedUser[user]; ok {
		return t, nil
	}
	u, ok, err := state.GetContractUser(s.RW, s.Contract, user)
	if err != nil {
		return nil, err
	}
	table, err := decodeTable(u, ok)
	if err != nil {
		return nil, err
	}
	s.loadedUser[user] = table
	return table, nil
}

func decodeTable(u types.ContractUser, ok bool) (map[string]any, error) {
	if !ok || u.DataJSON == "" {
		return map[string]any{}, nil
	}
	var table map[string]any
	if err := json.Unmarshal([]byte(u.DataJSON), &table); err != nil {
		return nil, fmt.Errorf("contract: decode user data: %w", err)
	}
	return table, nil
}

// MarkDirty flags a user's (or, for user == contract name, the contract's
// own) table as modified; Flush persists it on successful script return.
func (s *Sandbox) MarkDirty(user string) {
	if user == s.Contract {
		s.dirtyOwn = true
		return
	}
	s.dirtyUser[user] = true
}

// Transfer moves a liquid-token amount, either from the calling account
// into the contract's own balance, or from the contract to any account,
// per section 4.6's "from must be either the caller ... or the contract".
func (s *Sandbox) Transfer(from, to string, amount types.Asset) error {
	if from != s.Caller && from != s.Contract {
		return fmt.Errorf("contract: transfer: from must be the caller or the contract itself")
	}
	if from == s.Caller && to != s.Contract {
		return fmt.Errorf("contract: transfer: caller-originated transfers must target the contract")
	}
	if from == s.Contract {
		c, ok, err := state.GetContract(s.RW, s.Contract)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("contract: transfer: contract %s is not deployed", s.Contract)
		}
		if c.Balance.Amount.Cmp(amount.Amount) < 0 {
			return fmt.Errorf("contract: transfer: contract %s has insufficient balance", s.Contract)
		}
		if err := state.ModifyContract(s.RW, s.Contract, func(sc *types.SignedContract) {
			sc.Balance.Amount.Sub(sc.Balance.Amount, amount.Amount)
		}); err != nil {
			return err
		}
		if err := state.ModifyAccount(s.RW, to, func(a *types.Account) {
			a.Balance.Amount.Add(a.Balance.Amount, amount.Amount)
		}); err != nil {
			return err
		}
	} else {
		caller, err := state.MustGetAccount(s.RW, from)
		if err != nil {
			return err
		}
		if caller.Balance.Amount.Cmp(amount.Amount) < 0 {
			return fmt.Errorf("contract: transfer: %s has insufficient balance", from)
		}
		if err := state.ModifyAccount(s.RW, from, func(a *types.Account) {
			a.Balance.Amount.Sub(a.Balance.Amount, amount.Amount)
		}); err != nil {
			return err
		}
		if err := state.ModifyContract(s.RW, s.Contract, func(sc *types.SignedContract) {
			sc.Balance.Amount.Add(sc.Balance.Amount, amount.Amount)
		}); err != nil {
			return err
		}
	}
	s.Logs = append(s.Logs, ContractLog{Key: "transfer", Table: map[string]any{
		"from": from, "to": to, "amount": amount.String(),
	}})
	return nil
}

func (s *Sandbox) Emit(key string, table map[string]any) error {
	s.Logs = append(s.Logs, ContractLog{Key: key, Table: table})
	return nil
}

func (s *Sandbox) JSONStrToTable(js string) (map[string]any, error) {
	var table map[string]any
	if err := json.Unmarshal([]byte(js), &table); err != nil {
		return nil, fmt.Errorf("contract: jsonstr_to_table: %w", err)
	}
	return table, nil
}

// Flush persists every table this invocation marked dirty, creating a
// ContractUser row if one did not already exist, exactly as section 4.6
// describes for a normally-returning script.
func (s *Sandbox) Flush(headTime int64) error {
	if s.dirtyOwn {
		if err := s.putTable(s.Contract, s.loadedOwn, headTime); err != nil {
			return err
		}
	}
	for user, dirty := range s.dirtyUser {
		if !dirty {
			continue
		}
		if err := s.putTable(user, s.loadedUser[user], headTime); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sandbox) putTable(user string, table map[string]any, headTime int64) error {
	encoded, err := json.Marshal(table)
	if err != nil {
		return err
	}
	existing, ok, err := state.GetContractUser(s.RW, s.Contract, user)
	if err != nil {
		return err
	}
	created := existing.CreatedUnix
	if !ok {
		created = headTime
	}
	return state.PutContractUser(s.RW, types.ContractUser{
		Contract:       s.Contract,
		User:           user,
		DataJSON:       string(encoded),
		CreatedUnix:    created,
		LastUpdateUnix: headTime,
	})
}

package state

import (
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var escrowTable = objectstore.NewTable[types.Escrow]("escrow/")
var escrowByRatifyIndex = objectstore.NewIndex("escrow/byratify/")

// GetEscrow looks up an escrow by its (from, id) primary key.
func GetEscrow(rw objectstore.RW, from string, escrowID uint32) (types.Escrow, bool, error) {
	return escrowTable.Get(rw, []byte(types.EscrowKey(from, escrowID)))
}

// PutEscrow creates or replaces an escrow, indexed by its ratification
// deadline so unratified escrows can be expired (section 4.4 step 16).
func PutEscrow(rw objectstore.RW, e types.Escrow) error {
	id := []byte(types.EscrowKey(e.From, e.EscrowID))
	if old, ok, err := escrowTable.Get(rw, id); err != nil {
		return err
	} else if ok {
		if err := escrowByRatifyIndex.Delete(rw, expirationIndexKey(old.RatifyByUnix), id); err != nil {
			return err
		}
	}
	if err := escrowTable.Put(rw, id, e); err != nil {
		return err
	}
	return escrowByRatifyIndex.Put(rw, expirationIndexKey(e.RatifyByUnix), id)
}

// ModifyEscrow applies a read-modify-write mutation to an escrow.
func ModifyEscrow(rw objectstore.RW, from string, escrowID uint32, mutate func(*types.Escrow)) error {
	id := []byte(types.EscrowKey(from, escrowID))
	e, err := escrowTable.MustGet(rw, id)
	if err != nil {
		return err
	}
	mutate(&e)
	return escrowTable.Put(rw, id, e)
}

// RemoveEscrow deletes a released or expired escrow.
func RemoveEscrow(rw objectstore.RW, from string, escrowID uint32) error {
	id := []byte(types.EscrowKey(from, escrowID))
	e, ok, err := escrowTable.Get(rw, id)
	if err != nil || !ok {
		return err
	}
	if err := escrowByRatifyIndex.Delete(rw, expirationIndexKey(e.RatifyByUnix), id); err != nil {
		return err
	}
	return escrowTable.Remove(rw, id)
}

// UnratifiedEscrows returns pending escrows whose ratification deadline has
// passed without both parties approving.
func UnratifiedEscrows(rw objectstore.RW, headTime int64, limit int) ([]types.Escrow, error) {
	var due []types.Escrow
	err := escrowByRatifyIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		e, ok, err := escrowTable.Get(rw, id)
		if err != nil || !ok {
			return true, err
		}
		if e.RatifyByUnix > headTime {
			return false, nil
		}
		if e.Status == types.EscrowPending {
			due = append(due, e)
		}
		return len(due) < limit, nil
	})
	return due, err
}

// Package state exposes typed, per-entity-family accessors over the object
// store (component A), generalizing the teacher's core/state.Manager — a
// single flat-prefixed-key store addressed by account address — into the
// table-per-entity-family layout this spec's richer data model calls for.
package state

import (
	"fmt"

	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var globalTable = objectstore.NewTable[types.GlobalDynamicProperties]("global/props")
var scheduleTable = objectstore.NewTable[types.WitnessSchedule]("global/schedule")
var hardforkTable = objectstore.NewTable[types.HardforkProperty]("global/hardfork")
var feedHistoryTable = objectstore.NewTable[types.FeedHistory]("global/feed")

const singletonKey = "_"

// Global reads the singleton global dynamic properties object.
func Global(rw objectstore.RW) (types.GlobalDynamicProperties, error) {
	return globalTable.MustGet(rw, []byte(singletonKey))
}

// InitGlobal creates the singleton global dynamic properties object; callers
// must not already have one (genesis bootstrap only).
func InitGlobal(rw objectstore.RW, g types.GlobalDynamicProperties) error {
	if _, ok, _ := globalTable.Get(rw, []byte(singletonKey)); ok {
		return fmt.Errorf("state: global properties already initialized")
	}
	return globalTable.Put(rw, []byte(singletonKey), g)
}

// ModifyGlobal applies a read-modify-write mutation to the singleton global
// properties object.
func ModifyGlobal(rw objectstore.RW, mutate func(*types.GlobalDynamicProperties)) error {
	return globalTable.Modify(rw, []byte(singletonKey), mutate)
}

// Schedule reads the singleton witness schedule object.
func Schedule(rw objectstore.RW) (types.WitnessSchedule, error) {
	return scheduleTable.MustGet(rw, []byte(singletonKey))
}

// InitSchedule creates the singleton witness schedule object.
func InitSchedule(rw objectstore.RW, s types.WitnessSchedule) error {
	return scheduleTable.Put(rw, []byte(singletonKey), s)
}

// ModifySchedule applies a read-modify-write mutation to the schedule.
func ModifySchedule(rw objectstore.RW, mutate func(*types.WitnessSchedule)) error {
	return scheduleTable.Modify(rw, []byte(singletonKey), mutate)
}

// Hardfork reads the singleton hardfork-property object.
func Hardfork(rw objectstore.RW) (types.HardforkProperty, error) {
	return hardforkTable.MustGet(rw, []byte(singletonKey))
}

// InitHardfork creates the singleton hardfork-property object.
func InitHardfork(rw objectstore.RW, h types.HardforkProperty) error {
	return hardforkTable.Put(rw, []byte(singletonKey), h)
}

// ModifyHardfork applies a read-modify-write mutation to the hardfork
// properties.
func ModifyHardfork(rw objectstore.RW, mutate func(*types.HardforkProperty)) error {
	return hardforkTable.Modify(rw, []byte(singletonKey), mutate)
}

// FeedHistory reads the singleton feed-history ring.
func FeedHistory(rw objectstore.RW) (types.FeedHistory, error) {
	return feedHistoryTable.MustGet(rw, []byte(singletonKey))
}

// InitFeedHistory creates the singleton feed-history ring.
func InitFeedHistory(rw objectstore.RW, f types.FeedHistory) error {
	return feedHistoryTable.Put(rw, []byte(singletonKey), f)
}

// ModifyFeedHistory applies a read-modify-write mutation to the feed
// history.
func ModifyFeedHistory(rw objectstore.RW, mutate func(*types.FeedHistory)) error {
	return feedHistoryTable.Modify(rw, []byte(singletonKey), mutate)
}

var blockSummaryTable = objectstore.NewTable[types.BlockSummary]("global/blocksummary")

func blockSummaryKey(slot uint16) []byte {
	return []byte{byte(slot >> 8), byte(slot)}
}

// PutBlockSummary records the block id occupying the ring slot block_num &
// 0xFFFF (section 4.4 step 9).
func PutBlockSummary(rw objectstore.RW, blockNum uint64, id [32]byte) error {
	slot := uint16(blockNum & 0xFFFF)
	return blockSummaryTable.Put(rw, blockSummaryKey(slot), types.BlockSummary{Slot: slot, ID: id})
}

// BlockSummaryAt looks up the block id recorded in the ring slot ref_block_num
// & 0xFFFF, for TaPoS verification (section 4.4 step 4).
func BlockSummaryAt(rw objectstore.RW, slot uint16) (types.BlockSummary, bool, error) {
	return blockSummaryTable.Get(rw, blockSummaryKey(slot))
}

var txDedupeTable = objectstore.NewTable[types.TxDedupeEntry]("global/txdedupe")

// HasTransaction reports whether a transaction id is already recorded in the
// dedupe table (section 4.4 step 2 of apply-transaction).
func HasTransaction(rw objectstore.RW, id [32]byte) (bool, error) {
	_, ok, err := txDedupeTable.Get(rw, id[:])
	return ok, err
}

// RecordTransaction inserts a transaction id into the dedupe table (step 6).
func RecordTransaction(rw objectstore.RW, id [32]byte, expirationUnix int64) error {
	return txDedupeTable.Put(rw, id[:], types.TxDedupeEntry{ID: id, ExpirationUnix: expirationUnix})
}

// RemoveExpiredTransactions drops dedupe entries whose expiration has
// passed (section 4.4 step 10).
func RemoveExpiredTransactions(rw objectstore.RW, headTime int64) error {
	var stale [][]byte
	err := txDedupeTable.Iterate(rw, func(id []byte, entry types.TxDedupeEntry) (bool, error) {
		if entry.ExpirationUnix <= headTime {
			stale = append(stale, append([]byte(nil), id...))
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, id := range stale {
		if err := txDedupeTable.Remove(rw, id); err != nil {
			return err
		}
	}
	return nil
}

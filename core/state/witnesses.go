package state

import (
	"math/big"

	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var witnessTable = objectstore.NewTable[types.Witness]("witness/obj/")
var witnessByVoteIndex = objectstore.NewIndex("witness/byvote/")
var witnessByPowIndex = objectstore.NewIndex("witness/bypow/")

// GetWitness loads a witness by owner account name.
func GetWitness(rw objectstore.RW, owner string) (types.Witness, bool, error) {
	return witnessTable.Get(rw, []byte(owner))
}

// MustGetWitness loads a witness by owner or fails.
func MustGetWitness(rw objectstore.RW, owner string) (types.Witness, error) {
	return witnessTable.MustGet(rw, []byte(owner))
}

// voteIndexKey encodes votes as a fixed-width, big-endian, sign-flipped
// 32-byte key so that lexicographic (ascending) order over the key matches
// descending numeric order over votes — the by-vote index is always scanned
// for "highest votes first".
func voteIndexKey(votes *big.Int) []byte {
	if votes == nil {
		votes = big.NewInt(0)
	}
	const width = 32
	buf := make([]byte, width)
	b := votes.Bytes()
	if len(b) > width {
		b = b[len(b)-width:]
	}
	copy(buf[width-len(b):], b)
	for i := range buf {
		buf[i] = ^buf[i]
	}
	return buf
}

// powIndexKey encodes a block number as a fixed-width, big-endian,
// sign-flipped 8-byte key so ascending key order matches descending block
// order — the by-pow index is always scanned "most recently mined first",
// the same trick voteIndexKey uses for vote order.
func powIndexKey(blockNum uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(blockNum >> (8 * (7 - i)))
		buf[i] = ^buf[i]
	}
	return buf
}

// PutWitness creates or replaces a witness, maintaining the by-vote and
// by-pow indices.
func PutWitness(rw objectstore.RW, w types.Witness) error {
	if old, ok, err := witnessTable.Get(rw, []byte(w.Owner)); err != nil {
		return err
	} else if ok {
		if err := witnessByVoteIndex.Delete(rw, voteIndexKey(old.Votes), []byte(w.Owner)); err != nil {
			return err
		}
		if old.LastPowBlockNum != 0 {
			if err := witnessByPowIndex.Delete(rw, powIndexKey(old.LastPowBlockNum), []byte(w.Owner)); err != nil {
				return err
			}
		}
	}
	if err := witnessTable.Put(rw, []byte(w.Owner), w); err != nil {
		return err
	}
	if err := witnessByVoteIndex.Put(rw, voteIndexKey(w.Votes), []byte(w.Owner)); err != nil {
		return err
	}
	if w.LastPowBlockNum != 0 {
		return witnessByPowIndex.Put(rw, powIndexKey(w.LastPowBlockNum), []byte(w.Owner))
	}
	return nil
}

// ModifyWitness applies a read-modify-write mutation, re-keying the by-vote
// and by-pow indices if Votes or LastPowBlockNum changed.
func ModifyWitness(rw objectstore.RW, owner string, mutate func(*types.Witness)) error {
	w, err := witnessTable.MustGet(rw, []byte(owner))
	if err != nil {
		return err
	}
	if err := witnessByVoteIndex.Delete(rw, voteIndexKey(w.Votes), []byte(owner)); err != nil {
		return err
	}
	if w.LastPowBlockNum != 0 {
		if err := witnessByPowIndex.Delete(rw, powIndexKey(w.LastPowBlockNum), []byte(owner)); err != nil {
			return err
		}
	}
	mutate(&w)
	if err := witnessTable.Put(rw, []byte(owner), w); err != nil {
		return err
	}
	if err := witnessByVoteIndex.Put(rw, voteIndexKey(w.Votes), []byte(owner)); err != nil {
		return err
	}
	if w.LastPowBlockNum != 0 {
		return witnessByPowIndex.Put(rw, powIndexKey(w.LastPowBlockNum), []byte(owner))
	}
	return nil
}

// TopWitnessesByVote returns up to limit witness owner names in descending
// vote order, for schedule rotation (section 4.5).
func TopWitnessesByVote(rw objectstore.RW, limit int) ([]string, error) {
	var out []string
	err := witnessByVoteIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		out = append(out, string(id))
		return len(out) < limit, nil
	})
	return out, err
}

// TopMinerWitnesses returns up to limit witness owner names in
// most-recently-mined-first order, for the MAX_MINER schedule slots
// (section 4.5's "plus MAX_MINER by legacy pow").
func TopMinerWitnesses(rw objectstore.RW, limit int) ([]string, error) {
	var out []string
	err := witnessByPowIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		out = append(out, string(id))
		return len(out) < limit, nil
	})
	return out, err
}

// IterateWitnesses scans every witness in owner-name order.
func IterateWitnesses(rw objectstore.RW, fn func(types.Witness) (bool, error)) error {
	return witnessTable.Iterate(rw, func(_ []byte, w types.Witness) (bool, error) {
		return fn(w)
	})
}

// witnessFeedEntry is one witness's most recently published price feed, fed
// into the periodic medianization pass (section 4.5).
type witnessFeedEntry struct {
	Publisher    string
	Feed         types.PriceFeed
	PublishedUnix int64
}

var witnessFeedTable = objectstore.NewTable[witnessFeedEntry]("witness/feed/")

// RecordFeed stores a witness's latest published price feed, replacing any
// prior one (feed_publish has no history of its own; only the medianized
// ring in FeedHistory is retained across blocks).
func RecordFeed(rw objectstore.RW, publisher string, feed types.PriceFeed, headTime int64) error {
	return witnessFeedTable.Put(rw, []byte(publisher), witnessFeedEntry{
		Publisher:     publisher,
		Feed:          feed,
		PublishedUnix: headTime,
	})
}

// LiveFeeds returns every witness's live published feed not older than
// maxAgeSeconds, for the medianization pass.
func LiveFeeds(rw objectstore.RW, headTime, maxAgeSeconds int64) ([]types.PriceFeed, error) {
	var out []types.PriceFeed
	err := witnessFeedTable.Iterate(rw, func(_ []byte, e witnessFeedEntry) (bool, error) {
		if headTime-e.PublishedUnix <= maxAgeSeconds {
			out = append(out, e.Feed)
		}
		return true, nil
	})
	return out, err
}

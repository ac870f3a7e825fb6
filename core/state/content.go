package state

import (
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var commentTable = objectstore.NewTable[types.Comment]("comment/")
var commentByCashoutIndex = objectstore.NewIndex("comment/bycashout/")
var voteTable = objectstore.NewTable[types.CommentVote]("vote/")

func cashoutIndexKey(cashoutUnix int64) []byte {
	u := uint64(cashoutUnix)
	return []byte{byte(u >> 56), byte(u >> 48), byte(u >> 40), byte(u >> 32), byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}

// GetComment looks up a comment by author and permlink.
func GetComment(rw objectstore.RW, author, permlink string) (types.Comment, bool, error) {
	return commentTable.Get(rw, []byte(types.CommentID(author, permlink)))
}

// PutComment creates or replaces a comment, maintaining the by-cashout-time
// index used to drive section 4.5's comment cashout pass.
func PutComment(rw objectstore.RW, c types.Comment) error {
	id := []byte(types.CommentID(c.Author, c.Permlink))
	if old, ok, err := commentTable.Get(rw, id); err != nil {
		return err
	} else if ok && old.CashoutTimeUnix != c.CashoutTimeUnix {
		if err := commentByCashoutIndex.Delete(rw, cashoutIndexKey(old.CashoutTimeUnix), id); err != nil {
			return err
		}
	}
	if err := commentTable.Put(rw, id, c); err != nil {
		return err
	}
	return commentByCashoutIndex.Put(rw, cashoutIndexKey(c.CashoutTimeUnix), id)
}

// ModifyComment applies a read-modify-write mutation, re-keying the
// cashout-time index if it changed.
func ModifyComment(rw objectstore.RW, author, permlink string, mutate func(*types.Comment)) error {
	id := []byte(types.CommentID(author, permlink))
	c, err := commentTable.MustGet(rw, id)
	if err != nil {
		return err
	}
	oldCashout := c.CashoutTimeUnix
	mutate(&c)
	if oldCashout != c.CashoutTimeUnix {
		if err := commentByCashoutIndex.Delete(rw, cashoutIndexKey(oldCashout), id); err != nil {
			return err
		}
		if err := commentByCashoutIndex.Put(rw, cashoutIndexKey(c.CashoutTimeUnix), id); err != nil {
			return err
		}
	}
	return commentTable.Put(rw, id, c)
}

// RemoveComment deletes a comment (delete_comment, when no replies and no
// positive reward-shares exist).
func RemoveComment(rw objectstore.RW, author, permlink string) error {
	id := []byte(types.CommentID(author, permlink))
	c, ok, err := commentTable.Get(rw, id)
	if err != nil || !ok {
		return err
	}
	if err := commentByCashoutIndex.Delete(rw, cashoutIndexKey(c.CashoutTimeUnix), id); err != nil {
		return err
	}
	return commentTable.Remove(rw, id)
}

// DueCashouts returns up to limit comments whose cashout time has passed,
// in cashout-time order.
func DueCashouts(rw objectstore.RW, headTime int64, limit int) ([]types.Comment, error) {
	var due []types.Comment
	err := commentByCashoutIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		c, ok, err := commentTable.Get(rw, id)
		if err != nil || !ok {
			return true, err
		}
		if c.CashoutTimeUnix > headTime {
			return false, nil
		}
		due = append(due, c)
		return len(due) < limit, nil
	})
	return due, err
}

// GetVote looks up a voter's live vote on a comment.
func GetVote(rw objectstore.RW, voter, author, permlink string) (types.CommentVote, bool, error) {
	return voteTable.Get(rw, []byte(types.CommentVoteID(voter, author, permlink)))
}

// PutVote creates or replaces a comment vote.
func PutVote(rw objectstore.RW, v types.CommentVote) error {
	return voteTable.Put(rw, []byte(types.CommentVoteID(v.Voter, v.Author, v.Permlink)), v)
}

// VotesForComment returns every live vote recorded against a comment.
func VotesForComment(rw objectstore.RW, author, permlink string) ([]types.CommentVote, error) {
	var out []types.CommentVote
	err := voteTable.Iterate(rw, func(_ []byte, v types.CommentVote) (bool, error) {
		if v.Author == author && v.Permlink == permlink {
			out = append(out, v)
		}
		return true, nil
	})
	return out, err
}

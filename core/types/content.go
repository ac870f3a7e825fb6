package types

import "math/big"

// Comment is a content item: a top-level post or a reply (section 3).
type Comment struct {
	Author   string
	Permlink string

	ParentAuthor   string
	ParentPermlink string
	RootAuthor     string
	RootPermlink   string
	Depth          uint16

	CreatedUnix    int64
	LastUpdateUnix int64
	CashoutTimeUnix int64 // 1<<62 once archived ("infinite")
	ActiveUnix     int64

	NetRshares *big.Int // signed
	AbsRshares *big.Int
	VoteRshares *big.Int
	ChildrenRshares2 *big.Int

	NetVotes int32
	TotalVoteWeight *big.Int

	MaxAcceptedPayout   Asset
	PercentCuration     uint16
	AllowVotes          bool
	AllowCurationRewards bool
	Beneficiaries       []BeneficiaryEntry

	RewardWeight uint16
	TotalPayoutValue Asset
	CuratorPayoutValue Asset
	AuthorRewards      *big.Int

	Title string
	Body  string
	JSONMetadata string

	Children int32
	Deleted  bool
}

// CommentID forms the unique (author, permlink) primary key as a string.
func CommentID(author, permlink string) string {
	return author + "/" + permlink
}

// CommentVote is one voter's live contribution to a comment's reward-shares
// (section 3).
type CommentVote struct {
	Voter      string
	Author     string
	Permlink   string
	Weight     int16 // the raw requested weight, -10000..10000
	Rshares    *big.Int
	VoteWeightForCuration *big.Int // weight used in curation pro-rata split
	LastUpdateUnix int64
	NumChanges int32
}

// CommentVoteID forms the unique (voter, author, permlink) primary key.
func CommentVoteID(voter, author, permlink string) string {
	return voter + "/" + author + "/" + permlink
}

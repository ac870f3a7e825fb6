package types

import "math/big"

// Witness is a block-producer candidate (section 3's "Witness").
type Witness struct {
	Owner      string
	SigningKey string // base58-with-prefix public key; emptied ("shut down") on missed-block timeout
	URL        string

	AccountCreationFee Asset
	MaxBlockSize       uint32
	InterestRateBps    uint16

	Votes *big.Int // vesting-stake units

	RunningVersion   string
	HardforkVoteVersion string
	HardforkTimeVote int64

	// VirtualLastUpdate, VirtualPosition, and VirtualScheduledTime are the
	// three fields of the graphene-style virtual-time witness scheduler
	// (section 4.5's "runner" witness slots): all three share
	// CurrentVirtualTime's scale, not wall-clock time, despite the
	// "witness.cpp" naming convention this was ported from.
	VirtualLastUpdate    *big.Int
	VirtualPosition       *big.Int
	VirtualScheduledTime  *big.Int

	LastConfirmedBlockNum uint64
	LastAslot             uint64

	TotalMissed uint32
	CreatedUnix int64

	// LastPowBlockNum is the block a pow/pow2 op most recently registered
	// this owner's mining candidacy against; zero means never mined. Only
	// relevant while Params.PowCutoffBlockNum still accepts new work.
	LastPowBlockNum uint64
}

// WitnessScheduleType distinguishes how a scheduled witness earned its
// slot, used to scale the per-block producer reward (section 4.5).
type WitnessScheduleType uint8

const (
	ScheduleElected WitnessScheduleType = iota
	ScheduleMiner
	ScheduleVirtual
	ScheduleNone
)

// WitnessSchedule is the singleton table recording the current shuffled
// producer rotation and the current round's median chain parameters.
type WitnessSchedule struct {
	CurrentShuffledWitnesses []string
	// ScheduleTypes is parallel to CurrentShuffledWitnesses: how each slot's
	// occupant earned its place (elected / miner / virtual-runner), used to
	// scale that slot's producer reward (section 4.5).
	ScheduleTypes            []WitnessScheduleType
	NumScheduled             uint32
	CurrentVirtualTime       *big.Int
	NextShuffleBlockNum      uint64

	MedianAccountCreationFee Asset
	MedianMaxBlockSize       uint32
	MedianInterestRateBps    uint16
}

// HardforkProperty is the singleton table tracking activated hardforks and
// pending scheduled ones (section 4.7's reindex / apply-block step 16).
type HardforkProperty struct {
	LastHardfork     uint32
	CurrentHardforkVersion string
	NextHardfork     uint32
	NextHardforkTimeUnix int64
	ProcessedHardforks []int64
}

// BlockSummary is one slot of the 2^16-entry anti-replay ring (section 3).
type BlockSummary struct {
	Slot uint16
	ID   [32]byte
}

// TxDedupeEntry records a transaction id plus its expiration so the dedupe
// table can be pruned as transactions age out (section 4.4 step 2, step 10).
type TxDedupeEntry struct {
	ID             [32]byte
	ExpirationUnix int64
}

// FeedHistory is the singleton ring of recent median price feeds (section
// 3); Ring holds up to window-size entries in insertion order.
type FeedHistory struct {
	Ring                 []PriceFeed
	CurrentMedianHistory PriceFeed
}

// PriceFeed is a base/quote exchange-rate quote between the liquid and debt
// tokens.
type PriceFeed struct {
	Base  Asset
	Quote Asset
}

// LiquidityRewardBalance tracks an account's rolling order-book maker/taker
// volume for the periodic liquidity reward payout.
type LiquidityRewardBalance struct {
	Account        string
	LiquidVolume   *big.Int
	DebtVolume     *big.Int
	LastUpdateUnix int64
	Weight         *big.Int
}

// RewardFund is a per-category comment-payout pool (section 3, section 4.5).
type RewardFund struct {
	Name            string
	RewardBalance   Asset
	RecentClaims    *big.Int
	LastUpdateUnix  int64
	ContentConstant *big.Int
	PercentCuration uint16
	Quadratic       bool // quadratic vs linear f(net_rshares) curve
}

// GlobalDynamicProperties is the chain-wide singleton (section 3).
type GlobalDynamicProperties struct {
	HeadBlockNumber uint64
	HeadBlockID     [32]byte
	Time            int64
	CurrentWitness  string

	CurrentSupply      Asset
	CurrentDebtSupply  Asset
	VirtualSupply      Asset
	TotalVestingFund   Asset
	TotalVestingShares Asset
	PendingRewardedVestingShares  Asset
	PendingRewardedVestingBalance Asset

	TotalRewardFundLiquid Asset

	MaximumBlockSize uint32
	CurrentAslot     uint64
	RecentSlotsFilled *big.Int // 128-bit participation bitmap, stored as big.Int
	ParticipationCount uint8

	LastIrreversibleBlockNum uint64

	CurrentReserveRatio       uint32
	AverageBlockSize          uint32
	CurrentSupplyGrowthBlocks uint64

	DebtPrintRateBps uint32 // piecewise linear per section 4.5

	NextMaintenanceTime int64
	LastBudgetTime      int64

	NumPowWitnesses uint32
}

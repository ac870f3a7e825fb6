package types

import "math/big"

// Account is the chain's primary actor entity, keyed by its unique name
// string rather than the teacher's 20-byte address (section 3's "Account").
type Account struct {
	Name   string
	Owner  Authority
	Active Authority
	Posting Authority
	MemoKey string

	Balance         Asset // liquid
	DebtBalance     Asset // debt token
	SavingsBalance  Asset
	SavingsDebtBalance Asset
	RewardLiquidBalance  Asset
	RewardDebtBalance    Asset
	RewardVestingBalance Asset
	RewardVestingShares  Asset

	VestingShares          Asset
	DelegatedVestingShares Asset
	ReceivedVestingShares  Asset
	VestingWithdrawRate    Asset
	NextVestingWithdrawal  int64 // unix seconds; 0 = none scheduled
	ToWithdraw             *big.Int
	Withdrawn              *big.Int

	VotingPower       uint16 // 0..10000 basis points
	LastVoteTime      int64
	LastPostTime      int64
	LastRootPostTime  int64

	Proxy               string
	ProxiedVSFShares    [4]*big.Int // by proxy depth, for fast proxy-chain removal
	WitnessesVotedFor   uint16

	RecoveryAccount string
	LastAccountRecoveryUnix int64

	CreatedUnix int64

	CanVote bool // false once decline_voting_rights takes effect

	InterestSecondsBalance *big.Int
	LastInterestUpdateUnix int64
}

// AccountsPrefix is the key prefix of the primary-id-by-name table: accounts
// are looked up directly by name, so the "primary id" is the name string
// itself.
const AccountsPrefix = "acct/obj/"

// OwnerAuthHistory retains a prior owner authority for 30 days so
// recover_account can verify a signature against it (section 3).
type OwnerAuthHistory struct {
	Account       string
	PreviousOwner Authority
	LastValidUnix int64
}

// AccountRecoveryRequest is the pending replacement authority proposed by an
// account's recovery partner.
type AccountRecoveryRequest struct {
	AccountToRecover string
	NewOwnerAuthority Authority
	ExpiresUnix      int64
}

// ChangeRecoveryAccountRequest delays a recovery-account change by 30 days.
type ChangeRecoveryAccountRequest struct {
	AccountToRecover   string
	NewRecoveryAccount string
	EffectiveUnix      int64
}

// DeclineVotingRightsRequest delays the effect of decline_voting_rights.
type DeclineVotingRightsRequest struct {
	Account       string
	EffectiveUnix int64
}

// WithdrawRoute records one destination of an account's vesting
// power-down stream.
type WithdrawRoute struct {
	From      string
	To        string
	PercentBps uint16
	AutoVest  bool
}

// VestingDelegation tracks vesting shares lent from Delegator to Delegatee.
type VestingDelegation struct {
	Delegator     string
	Delegatee     string
	VestingShares Asset
	MinExpirationUnix int64
}

// VestingDelegationExpiration queues a delegation decrease's delayed return.
type VestingDelegationExpiration struct {
	ID            uint64
	Delegator     string
	VestingShares Asset
	ExpirationUnix int64
}

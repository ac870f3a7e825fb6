package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// OpType tags which operation variant an OpEnvelope carries. RLP cannot
// encode a Go interface directly, so every operation travels as a type tag
// plus its own RLP-encoded payload, the static_variant pattern section 9's
// design notes call for ("a single sum type ... each arm delegating to a
// pure function").
type OpType uint16

const (
	OpTransfer OpType = iota
	OpTransferToVesting
	OpWithdrawVesting
	OpSetWithdrawVestingRoute
	OpAccountCreate
	OpWitnessUpdate
	OpAccountWitnessVote
	OpAccountWitnessProxy
	OpVote
	OpComment
	OpDeleteComment
	OpCommentOptions
	OpLimitOrderCreate
	OpLimitOrderCreate2
	OpLimitOrderCancel
	OpConvert
	OpFeedPublish
	OpClaimRewardBalance
	OpDelegateVestingShares
	OpEscrowTransfer
	OpEscrowApprove
	OpEscrowDispute
	OpEscrowRelease
	OpRequestAccountRecovery
	OpRecoverAccount
	OpChangeRecoveryAccount
	OpDeclineVotingRights
	OpTransferToSavings
	OpTransferFromSavings
	OpCancelTransferFromSavings
	OpContractDeploy
	OpContractCall
	OpCrowdfundingCreate
	OpCrowdfundingInvest
	OpNonFungibleFundCreate
	OpNonFungibleTransfer
	OpNonFungibleFundOnSale
	OpNonFungibleFundCancelSale
	OpNonFungibleFundBuy
	OpCustomJSON
	OpPow
	OpPow2
)

func (t OpType) String() string {
	switch t {
	case OpTransfer:
		return "transfer"
	case OpTransferToVesting:
		return "transfer_to_vesting"
	case OpWithdrawVesting:
		return "withdraw_vesting"
	case OpSetWithdrawVestingRoute:
		return "set_withdraw_vesting_route"
	case OpAccountCreate:
		return "account_create"
	case OpWitnessUpdate:
		return "witness_update"
	case OpAccountWitnessVote:
		return "account_witness_vote"
	case OpAccountWitnessProxy:
		return "account_witness_proxy"
	case OpVote:
		return "vote"
	case OpComment:
		return "comment"
	case OpDeleteComment:
		return "delete_comment"
	case OpCommentOptions:
		return "comment_options"
	case OpLimitOrderCreate:
		return "limit_order_create"
	case OpLimitOrderCreate2:
		return "limit_order_create2"
	case OpLimitOrderCancel:
		return "limit_order_cancel"
	case OpConvert:
		return "convert"
	case OpFeedPublish:
		return "feed_publish"
	case OpClaimRewardBalance:
		return "claim_reward_balance"
	case OpDelegateVestingShares:
		return "delegate_vesting_shares"
	case OpEscrowTransfer:
		return "escrow_transfer"
	case OpEscrowApprove:
		return "escrow_approve"
	case OpEscrowDispute:
		return "escrow_dispute"
	case OpEscrowRelease:
		return "escrow_release"
	case OpRequestAccountRecovery:
		return "request_account_recovery"
	case OpRecoverAccount:
		return "recover_account"
	case OpChangeRecoveryAccount:
		return "change_recovery_account"
	case OpDeclineVotingRights:
		return "decline_voting_rights"
	case OpTransferToSavings:
		return "transfer_to_savings"
	case OpTransferFromSavings:
		return "transfer_from_savings"
	case OpCancelTransferFromSavings:
		return "cancel_transfer_from_savings"
	case OpContractDeploy:
		return "contract_deploy"
	case OpContractCall:
		return "contract_call"
	case OpCrowdfundingCreate:
		return "crowdfunding_create"
	case OpCrowdfundingInvest:
		return "crowdfunding_invest"
	case OpNonFungibleFundCreate:
		return "nonfungible_fund_create"
	case OpNonFungibleTransfer:
		return "nonfungible_transfer"
	case OpNonFungibleFundOnSale:
		return "nonfungible_fund_on_sale"
	case OpNonFungibleFundCancelSale:
		return "nonfungible_fund_cancel_sale"
	case OpNonFungibleFundBuy:
		return "nonfungible_fund_buy"
	case OpCustomJSON:
		return "custom_json"
	case OpPow:
		return "pow"
	case OpPow2:
		return "pow2"
	default:
		return fmt.Sprintf("op(%d)", uint16(t))
	}
}

// AuthLevel identifies which role of an account's keyed authority an
// operation requires.
type AuthLevel uint8

const (
	AuthNone AuthLevel = iota
	AuthPosting
	AuthActive
	AuthOwner
)

// Operation is implemented by every concrete operation payload. Validate
// performs only static, stateless checks (section 4.4 step 1); RequiredAuths
// reports which accounts must sign under which role for this operation to be
// authorized (step 3).
type Operation interface {
	Type() OpType
	Validate() error
	RequiredAuths() []RequiredAuth
}

// RequiredAuth names one account and the authority level it must satisfy.
type RequiredAuth struct {
	Account string
	Level   AuthLevel
}

// OpEnvelope is the wire-level, RLP-friendly carrier for one operation: a
// type tag plus the operation's own RLP encoding.
type OpEnvelope struct {
	Type    OpType
	Payload []byte
}

// EncodeOperation wraps a concrete Operation into a transmissible envelope.
func EncodeOperation(op Operation) (OpEnvelope, error) {
	payload, err := rlp.EncodeToBytes(op)
	if err != nil {
		return OpEnvelope{}, fmt.Errorf("types: encode operation %s: %w", op.Type(), err)
	}
	return OpEnvelope{Type: op.Type(), Payload: payload}, nil
}

// DecodeOperation unwraps an envelope into its concrete Operation, dispatched
// by type tag. This is the "visit free function" section 9 describes in
// place of the original's polymorphic visitor.
func DecodeOperation(env OpEnvelope) (Operation, error) {
	var op Operation
	switch env.Type {
	case OpTransfer:
		op = &TransferOp{}
	case OpTransferToVesting:
		op = &TransferToVestingOp{}
	case OpWithdrawVesting:
		op = &WithdrawVestingOp{}
	case OpSetWithdrawVestingRoute:
		op = &SetWithdrawVestingRouteOp{}
	case OpAccountCreate:
		op = &AccountCreateOp{}
	case OpWitnessUpdate:
		op = &WitnessUpdateOp{}
	case OpAccountWitnessVote:
		op = &AccountWitnessVoteOp{}
	case OpAccountWitnessProxy:
		op = &AccountWitnessProxyOp{}
	case OpVote:
		op = &VoteOp{}
	case OpComment:
		op = &CommentOp{}
	case OpDeleteComment:
		op = &DeleteCommentOp{}
	case OpCommentOptions:
		op = &CommentOptionsOp{}
	case OpLimitOrderCreate:
		op = &LimitOrderCreateOp{}
	case OpLimitOrderCreate2:
		op = &LimitOrderCreate2Op{}
	case OpLimitOrderCancel:
		op = &LimitOrderCancelOp{}
	case OpConvert:
		op = &ConvertOp{}
	case OpFeedPublish:
		op = &FeedPublishOp{}
	case OpClaimRewardBalance:
		op = &ClaimRewardBalanceOp{}
	case OpDelegateVestingShares:
		op = &DelegateVestingSharesOp{}
	case OpEscrowTransfer:
		op = &EscrowTransferOp{}
	case OpEscrowApprove:
		op = &EscrowApproveOp{}
	case OpEscrowDispute:
		op = &EscrowDisputeOp{}
	case OpEscrowRelease:
		op = &EscrowReleaseOp{}
	case OpRequestAccountRecovery:
		op = &RequestAccountRecoveryOp{}
	case OpRecoverAccount:
		op = &RecoverAccountOp{}
	case OpChangeRecoveryAccount:
		op = &ChangeRecoveryAccountOp{}
	case OpDeclineVotingRights:
		op = &DeclineVotingRightsOp{}
	case OpTransferToSavings:
		op = &TransferToSavingsOp{}
	case OpTransferFromSavings:
		op = &TransferFromSavingsOp{}
	case OpCancelTransferFromSavings:
		op = &CancelTransferFromSavingsOp{}
	case OpContractDeploy:
		op = &ContractDeployOp{}
	case OpContractCall:
		op = &ContractCallOp{}
	case OpCrowdfundingCreate:
		op = &CrowdfundingCreateOp{}
	case OpCrowdfundingInvest:
		op = &CrowdfundingInvestOp{}
	case OpNonFungibleFundCreate:
		op = &NonFungibleFundCreateOp{}
	case OpNonFungibleTransfer:
		op = &NonFungibleTransferOp{}
	case OpNonFungibleFundOnSale:
		op = &NonFungibleFundOnSaleOp{}
	case OpNonFungibleFundCancelSale:
		op = &NonFungibleFundCancelSaleOp{}
	case OpNonFungibleFundBuy:
		op = &NonFungibleFundBuyOp{}
	case OpCustomJSON:
		op = &CustomJSONOp{}
	case OpPow:
		op = &PowOp{}
	case OpPow2:
		op = &Pow2Op{}
	default:
		return nil, fmt.Errorf("types: unknown operation tag %d", env.Type)
	}
	if err := rlp.DecodeBytes(env.Payload, op); err != nil {
		return nil, fmt.Errorf("types: decode operation %s: %w", env.Type, err)
	}
	return op, nil
}

func validateAccountName(name string) error {
	if len(name) < 3 || len(name) > 16 {
		return fmt.Errorf("types: account name %q must be 3-16 characters", name)
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '-'
		if !ok {
			return fmt.Errorf("types: account name %q contains invalid character %q", name, r)
		}
	}
	if name[0] < 'a' || name[0] > 'z' {
		return fmt.Errorf("types: account name %q must start with a letter", name)
	}
	return nil
}

func validatePermlink(p string) error {
	if len(p) == 0 || len(p) > 256 {
		return fmt.Errorf("types: permlink length %d out of range", len(p))
	}
	return nil
}

// --- Transfer family ---

type TransferOp struct {
	From   string
	To     string
	Amount Asset
	Memo   string
}

func (o *TransferOp) Type() OpType { return OpTransfer }
func (o *TransferOp) Validate() error {
	if err := validateAccountName(o.From); err != nil {
		return err
	}
	if err := validateAccountName(o.To); err != nil {
		return err
	}
	if o.Amount.Kind != AssetLiquid && o.Amount.Kind != AssetDebt {
		return fmt.Errorf("types: transfer amount must be liquid or debt token")
	}
	if o.Amount.Sign() <= 0 {
		return fmt.Errorf("types: transfer amount must be positive")
	}
	if len(o.Memo) > 2048 {
		return fmt.Errorf("types: memo too long")
	}
	return nil
}
func (o *TransferOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.From, Level: AuthActive}}
}

type TransferToVestingOp struct {
	From   string
	To     string
	Amount Asset
}

func (o *TransferToVestingOp) Type() OpType { return OpTransferToVesting }
func (o *TransferToVestingOp) Validate() error {
	if err := validateAccountName(o.From); err != nil {
		return err
	}
	if err := validateAccountName(o.To); err != nil {
		return err
	}
	if o.Amount.Kind != AssetLiquid || o.Amount.Sign() <= 0 {
		return fmt.Errorf("types: transfer_to_vesting amount must be a positive liquid amount")
	}
	return nil
}
func (o *TransferToVestingOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.From, Level: AuthActive}}
}

type WithdrawVestingOp struct {
	Account        string
	VestingShares  Asset
}

func (o *WithdrawVestingOp) Type() OpType { return OpWithdrawVesting }
func (o *WithdrawVestingOp) Validate() error {
	if err := validateAccountName(o.Account); err != nil {
		return err
	}
	if o.VestingShares.Kind != AssetVesting || o.VestingShares.Sign() < 0 {
		return fmt.Errorf("types: withdraw_vesting shares must be a non-negative vesting amount")
	}
	return nil
}
func (o *WithdrawVestingOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Account, Level: AuthActive}}
}

type WithdrawRouteEntry struct {
	ToAccount string
	Percent   uint16 // basis points out of 10000
	AutoVest  bool
}

type SetWithdrawVestingRouteOp struct {
	From   string
	Routes []WithdrawRouteEntry
}

func (o *SetWithdrawVestingRouteOp) Type() OpType { return OpSetWithdrawVestingRoute }
func (o *SetWithdrawVestingRouteOp) Validate() error {
	if err := validateAccountName(o.From); err != nil {
		return err
	}
	var total uint32
	for _, r := range o.Routes {
		if err := validateAccountName(r.ToAccount); err != nil {
			return err
		}
		total += uint32(r.Percent)
	}
	if total > 10000 {
		return fmt.Errorf("types: withdraw routes sum to more than 100%%")
	}
	if len(o.Routes) > 10 {
		return fmt.Errorf("types: too many withdraw routes")
	}
	return nil
}
func (o *SetWithdrawVestingRouteOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.From, Level: AuthActive}}
}

// --- Account / witness family ---

type AuthorityEntry struct {
	Key     string // base58 public key, empty if Account is set
	Account string
	Weight  uint16
}

type Authority struct {
	WeightThreshold uint32
	Entries         []AuthorityEntry
}

type AccountCreateOp struct {
	Fee            Asset
	Creator        string
	NewAccountName string
	Owner          Authority
	Active         Authority
	Posting        Authority
	MemoKey        string
}

func (o *AccountCreateOp) Type() OpType { return OpAccountCreate }
func (o *AccountCreateOp) Validate() error {
	if err := validateAccountName(o.Creator); err != nil {
		return err
	}
	if err := validateAccountName(o.NewAccountName); err != nil {
		return err
	}
	if o.Fee.Kind != AssetLiquid || o.Fee.Sign() < 0 {
		return fmt.Errorf("types: account_create fee must be a non-negative liquid amount")
	}
	return nil
}
func (o *AccountCreateOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Creator, Level: AuthActive}}
}

type WitnessUpdateOp struct {
	Owner             string
	URL               string
	SigningKey        string
	AccountCreationFee Asset
	MaxBlockSize      uint32
	InterestRateBps   uint16
}

func (o *WitnessUpdateOp) Type() OpType { return OpWitnessUpdate }
func (o *WitnessUpdateOp) Validate() error {
	if err := validateAccountName(o.Owner); err != nil {
		return err
	}
	if len(o.URL) > 256 {
		return fmt.Errorf("types: witness url too long")
	}
	if o.MaxBlockSize < 115 {
		return fmt.Errorf("types: max_block_size below minimum")
	}
	return nil
}
func (o *WitnessUpdateOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Owner, Level: AuthActive}}
}

type AccountWitnessVoteOp struct {
	Account string
	Witness string
	Approve bool
}

func (o *AccountWitnessVoteOp) Type() OpType { return OpAccountWitnessVote }
func (o *AccountWitnessVoteOp) Validate() error {
	if err := validateAccountName(o.Account); err != nil {
		return err
	}
	return validateAccountName(o.Witness)
}
func (o *AccountWitnessVoteOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Account, Level: AuthActive}}
}

type AccountWitnessProxyOp struct {
	Account string
	Proxy   string // empty clears the proxy
}

func (o *AccountWitnessProxyOp) Type() OpType { return OpAccountWitnessProxy }
func (o *AccountWitnessProxyOp) Validate() error {
	if err := validateAccountName(o.Account); err != nil {
		return err
	}
	if o.Proxy != "" {
		return validateAccountName(o.Proxy)
	}
	return nil
}
func (o *AccountWitnessProxyOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Account, Level: AuthActive}}
}

// --- Content family ---

type VoteOp struct {
	Voter    string
	Author   string
	Permlink string
	Weight   int16 // -10000..10000 basis points
}

func (o *VoteOp) Type() OpType { return OpVote }
func (o *VoteOp) Validate() error {
	if err := validateAccountName(o.Voter); err != nil {
		return err
	}
	if err := validateAccountName(o.Author); err != nil {
		return err
	}
	if err := validatePermlink(o.Permlink); err != nil {
		return err
	}
	if o.Weight < -10000 || o.Weight > 10000 {
		return fmt.Errorf("types: vote weight %d out of range", o.Weight)
	}
	return nil
}
func (o *VoteOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Voter, Level: AuthPosting}}
}

type BeneficiaryEntry struct {
	Account string
	Percent uint16
}

type CommentOp struct {
	ParentAuthor   string
	ParentPermlink string
	Author         string
	Permlink       string
	Title          string
	Body           string
	JSONMetadata   string
}

func (o *CommentOp) Type() OpType { return OpComment }
func (o *CommentOp) Validate() error {
	if err := validateAccountName(o.Author); err != nil {
		return err
	}
	if err := validatePermlink(o.Permlink); err != nil {
		return err
	}
	if o.ParentAuthor != "" {
		if err := validateAccountName(o.ParentAuthor); err != nil {
			return err
		}
		if err := validatePermlink(o.ParentPermlink); err != nil {
			return err
		}
	}
	if len(o.Title) > 256 {
		return fmt.Errorf("types: comment title too long")
	}
	if len(o.Body) == 0 {
		return fmt.Errorf("types: comment body must not be empty")
	}
	return nil
}
func (o *CommentOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Author, Level: AuthPosting}}
}

type DeleteCommentOp struct {
	Author   string
	Permlink string
}

func (o *DeleteCommentOp) Type() OpType { return OpDeleteComment }
func (o *DeleteCommentOp) Validate() error {
	if err := validateAccountName(o.Author); err != nil {
		return err
	}
	return validatePermlink(o.Permlink)
}
func (o *DeleteCommentOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Author, Level: AuthPosting}}
}

type CommentOptionsOp struct {
	Author            string
	Permlink          string
	MaxAcceptedPayout Asset
	PercentCuration   uint16 // basis points of payout routed to curators
	AllowVotes        bool
	AllowCurationRewards bool
	Beneficiaries     []BeneficiaryEntry
}

func (o *CommentOptionsOp) Type() OpType { return OpCommentOptions }
func (o *CommentOptionsOp) Validate() error {
	if err := validateAccountName(o.Author); err != nil {
		return err
	}
	if err := validatePermlink(o.Permlink); err != nil {
		return err
	}
	var total uint32
	for _, b := range o.Beneficiaries {
		if err := validateAccountName(b.Account); err != nil {
			return err
		}
		total += uint32(b.Percent)
	}
	if total > 10000 {
		return fmt.Errorf("types: beneficiary percentages exceed 100%%")
	}
	if o.PercentCuration > 10000 {
		return fmt.Errorf("types: curation percent out of range")
	}
	return nil
}
func (o *CommentOptionsOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Author, Level: AuthPosting}}
}

// --- Market family ---

type LimitOrderCreateOp struct {
	Owner          string
	OrderID        uint32
	AmountToSell   Asset
	MinToReceive   Asset
	FillOrKill     bool
	ExpirationUnix int64
}

func (o *LimitOrderCreateOp) Type() OpType { return OpLimitOrderCreate }
func (o *LimitOrderCreateOp) Validate() error {
	if err := validateAccountName(o.Owner); err != nil {
		return err
	}
	if o.AmountToSell.Sign() <= 0 || o.MinToReceive.Sign() <= 0 {
		return fmt.Errorf("types: limit order amounts must be positive")
	}
	if o.AmountToSell.Kind == o.MinToReceive.Kind {
		return fmt.Errorf("types: limit order must cross liquid and debt tokens")
	}
	return nil
}
func (o *LimitOrderCreateOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Owner, Level: AuthActive}}
}

// LimitOrderCreate2Op expresses the order as an explicit price ratio rather
// than a min-to-receive amount; otherwise identical semantics.
type LimitOrderCreate2Op struct {
	Owner          string
	OrderID        uint32
	AmountToSell   Asset
	PriceBase      Asset
	PriceQuote     Asset
	FillOrKill     bool
	ExpirationUnix int64
}

func (o *LimitOrderCreate2Op) Type() OpType { return OpLimitOrderCreate2 }
func (o *LimitOrderCreate2Op) Validate() error {
	if err := validateAccountName(o.Owner); err != nil {
		return err
	}
	if o.AmountToSell.Sign() <= 0 || o.PriceBase.Sign() <= 0 || o.PriceQuote.Sign() <= 0 {
		return fmt.Errorf("types: limit order amounts must be positive")
	}
	if o.PriceBase.Kind == o.PriceQuote.Kind {
		return fmt.Errorf("types: limit order price must cross liquid and debt tokens")
	}
	return nil
}
func (o *LimitOrderCreate2Op) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Owner, Level: AuthActive}}
}

type LimitOrderCancelOp struct {
	Owner   string
	OrderID uint32
}

func (o *LimitOrderCancelOp) Type() OpType { return OpLimitOrderCancel }
func (o *LimitOrderCancelOp) Validate() error {
	return validateAccountName(o.Owner)
}
func (o *LimitOrderCancelOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Owner, Level: AuthActive}}
}

type ConvertOp struct {
	Owner     string
	RequestID uint32
	Amount    Asset
}

func (o *ConvertOp) Type() OpType { return OpConvert }
func (o *ConvertOp) Validate() error {
	if err := validateAccountName(o.Owner); err != nil {
		return err
	}
	if o.Amount.Kind != AssetDebt || o.Amount.Sign() <= 0 {
		return fmt.Errorf("types: convert amount must be a positive debt-token amount")
	}
	return nil
}
func (o *ConvertOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Owner, Level: AuthActive}}
}

type FeedPublishOp struct {
	Publisher  string
	QuoteBase  Asset
	QuoteQuote Asset
}

func (o *FeedPublishOp) Type() OpType { return OpFeedPublish }
func (o *FeedPublishOp) Validate() error {
	if err := validateAccountName(o.Publisher); err != nil {
		return err
	}
	if o.QuoteBase.Sign() <= 0 || o.QuoteQuote.Sign() <= 0 {
		return fmt.Errorf("types: feed quote amounts must be positive")
	}
	return nil
}
func (o *FeedPublishOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Publisher, Level: AuthActive}}
}

// --- Rewards / vesting delegation ---

type ClaimRewardBalanceOp struct {
	Account        string
	RewardLiquid   Asset
	RewardDebt     Asset
	RewardVesting  Asset
}

func (o *ClaimRewardBalanceOp) Type() OpType { return OpClaimRewardBalance }
func (o *ClaimRewardBalanceOp) Validate() error {
	return validateAccountName(o.Account)
}
func (o *ClaimRewardBalanceOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Account, Level: AuthPosting}}
}

type DelegateVestingSharesOp struct {
	Delegator     string
	Delegatee     string
	VestingShares Asset
}

func (o *DelegateVestingSharesOp) Type() OpType { return OpDelegateVestingShares }
func (o *DelegateVestingSharesOp) Validate() error {
	if err := validateAccountName(o.Delegator); err != nil {
		return err
	}
	if err := validateAccountName(o.Delegatee); err != nil {
		return err
	}
	if o.VestingShares.Kind != AssetVesting || o.VestingShares.Sign() < 0 {
		return fmt.Errorf("types: delegated vesting shares must be non-negative")
	}
	return nil
}
func (o *DelegateVestingSharesOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Delegator, Level: AuthActive}}
}

// --- Escrow family ---

type EscrowTransferOp struct {
	From      string
	To        string
	Agent     string
	EscrowID  uint32
	Amount    Asset
	Fee       Asset
	RatifyByUnix int64
	ExpirationUnix int64
	JSONMeta  string
}

func (o *EscrowTransferOp) Type() OpType { return OpEscrowTransfer }
func (o *EscrowTransferOp) Validate() error {
	if err := validateAccountName(o.From); err != nil {
		return err
	}
	if err := validateAccountName(o.To); err != nil {
		return err
	}
	if err := validateAccountName(o.Agent); err != nil {
		return err
	}
	if o.Amount.Sign() < 0 || o.Fee.Sign() < 0 {
		return fmt.Errorf("types: escrow amounts must be non-negative")
	}
	if o.ExpirationUnix <= o.RatifyByUnix {
		return fmt.Errorf("types: escrow expiration must be after the ratification deadline")
	}
	return nil
}
func (o *EscrowTransferOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.From, Level: AuthActive}}
}

type EscrowApproveOp struct {
	From     string
	To       string
	Agent    string
	Who      string
	EscrowID uint32
	Approve  bool
}

func (o *EscrowApproveOp) Type() OpType { return OpEscrowApprove }
func (o *EscrowApproveOp) Validate() error {
	return validateAccountName(o.Who)
}
func (o *EscrowApproveOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Who, Level: AuthActive}}
}

type EscrowDisputeOp struct {
	From     string
	To       string
	Agent    string
	Who      string
	EscrowID uint32
}

func (o *EscrowDisputeOp) Type() OpType { return OpEscrowDispute }
func (o *EscrowDisputeOp) Validate() error {
	return validateAccountName(o.Who)
}
func (o *EscrowDisputeOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Who, Level: AuthActive}}
}

type EscrowReleaseOp struct {
	From     string
	To       string
	Agent    string
	Who      string
	Receiver string
	EscrowID uint32
	Amount   Asset
}

func (o *EscrowReleaseOp) Type() OpType { return OpEscrowRelease }
func (o *EscrowReleaseOp) Validate() error {
	if err := validateAccountName(o.Who); err != nil {
		return err
	}
	if err := validateAccountName(o.Receiver); err != nil {
		return err
	}
	if o.Amount.Sign() <= 0 {
		return fmt.Errorf("types: escrow release amount must be positive")
	}
	return nil
}
func (o *EscrowReleaseOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Who, Level: AuthActive}}
}

// --- Recovery family ---

type RequestAccountRecoveryOp struct {
	RecoveryAccount string
	AccountToRecover string
	NewOwner        Authority
}

func (o *RequestAccountRecoveryOp) Type() OpType { return OpRequestAccountRecovery }
func (o *RequestAccountRecoveryOp) Validate() error {
	if err := validateAccountName(o.RecoveryAccount); err != nil {
		return err
	}
	return validateAccountName(o.AccountToRecover)
}
func (o *RequestAccountRecoveryOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.RecoveryAccount, Level: AuthActive}}
}

type RecoverAccountOp struct {
	AccountToRecover string
	NewOwner         Authority
	RecentOwner      Authority
}

func (o *RecoverAccountOp) Type() OpType { return OpRecoverAccount }
func (o *RecoverAccountOp) Validate() error {
	return validateAccountName(o.AccountToRecover)
}
func (o *RecoverAccountOp) RequiredAuths() []RequiredAuth {
	return nil // both NewOwner and RecentOwner authorities are checked explicitly by the evaluator
}

type ChangeRecoveryAccountOp struct {
	AccountToRecover string
	NewRecoveryAccount string
}

func (o *ChangeRecoveryAccountOp) Type() OpType { return OpChangeRecoveryAccount }
func (o *ChangeRecoveryAccountOp) Validate() error {
	if err := validateAccountName(o.AccountToRecover); err != nil {
		return err
	}
	return validateAccountName(o.NewRecoveryAccount)
}
func (o *ChangeRecoveryAccountOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.AccountToRecover, Level: AuthOwner}}
}

type DeclineVotingRightsOp struct {
	Account string
	Decline bool
}

func (o *DeclineVotingRightsOp) Type() OpType { return OpDeclineVotingRights }
func (o *DeclineVotingRightsOp) Validate() error {
	return validateAccountName(o.Account)
}
func (o *DeclineVotingRightsOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Account, Level: AuthOwner}}
}

// --- Savings family ---

type TransferToSavingsOp struct {
	From   string
	To     string
	Amount Asset
	Memo   string
}

func (o *TransferToSavingsOp) Type() OpType { return OpTransferToSavings }
func (o *TransferToSavingsOp) Validate() error {
	if err := validateAccountName(o.From); err != nil {
		return err
	}
	if err := validateAccountName(o.To); err != nil {
		return err
	}
	if o.Amount.Sign() <= 0 {
		return fmt.Errorf("types: transfer_to_savings amount must be positive")
	}
	return nil
}
func (o *TransferToSavingsOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.From, Level: AuthActive}}
}

type TransferFromSavingsOp struct {
	From      string
	RequestID uint32
	To        string
	Amount    Asset
	Memo      string
}

func (o *TransferFromSavingsOp) Type() OpType { return OpTransferFromSavings }
func (o *TransferFromSavingsOp) Validate() error {
	if err := validateAccountName(o.From); err != nil {
		return err
	}
	if err := validateAccountName(o.To); err != nil {
		return err
	}
	if o.Amount.Sign() <= 0 {
		return fmt.Errorf("types: transfer_from_savings amount must be positive")
	}
	return nil
}
func (o *TransferFromSavingsOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.From, Level: AuthActive}}
}

type CancelTransferFromSavingsOp struct {
	From      string
	RequestID uint32
}

func (o *CancelTransferFromSavingsOp) Type() OpType { return OpCancelTransferFromSavings }
func (o *CancelTransferFromSavingsOp) Validate() error {
	return validateAccountName(o.From)
}
func (o *CancelTransferFromSavingsOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.From, Level: AuthActive}}
}

// --- Contract family ---

type ContractDeployOp struct {
	Creator     string
	Name        string
	VersionHash [32]byte
	Bytecode    []byte
	ABI         string
}

func (o *ContractDeployOp) Type() OpType { return OpContractDeploy }
func (o *ContractDeployOp) Validate() error {
	if err := validateAccountName(o.Creator); err != nil {
		return err
	}
	if len(o.Name) == 0 || len(o.Name) > 32 {
		return fmt.Errorf("types: contract name length out of range")
	}
	if len(o.Bytecode) == 0 {
		return fmt.Errorf("types: contract bytecode must not be empty")
	}
	return nil
}
func (o *ContractDeployOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Creator, Level: AuthActive}}
}

type ContractCallOp struct {
	Caller   string
	Contract string
	Method   string
	ArgsJSON string
}

func (o *ContractCallOp) Type() OpType { return OpContractCall }
func (o *ContractCallOp) Validate() error {
	if err := validateAccountName(o.Caller); err != nil {
		return err
	}
	if len(o.Method) == 0 {
		return fmt.Errorf("types: contract method must not be empty")
	}
	return nil
}
func (o *ContractCallOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Caller, Level: AuthActive}}
}

// --- Crowdfunding family ---

type CrowdfundingCreateOp struct {
	Originator     string
	FundID         uint32
	Target         Asset
	ExpirationUnix int64
	JSONMeta       string
}

func (o *CrowdfundingCreateOp) Type() OpType { return OpCrowdfundingCreate }
func (o *CrowdfundingCreateOp) Validate() error {
	if err := validateAccountName(o.Originator); err != nil {
		return err
	}
	if o.Target.Sign() <= 0 {
		return fmt.Errorf("types: crowdfunding target must be positive")
	}
	return nil
}
func (o *CrowdfundingCreateOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Originator, Level: AuthActive}}
}

type CrowdfundingInvestOp struct {
	Originator string
	Investor   string
	FundID     uint32
	Amount     Asset
}

func (o *CrowdfundingInvestOp) Type() OpType { return OpCrowdfundingInvest }
func (o *CrowdfundingInvestOp) Validate() error {
	if err := validateAccountName(o.Originator); err != nil {
		return err
	}
	if err := validateAccountName(o.Investor); err != nil {
		return err
	}
	if o.Amount.Sign() <= 0 {
		return fmt.Errorf("types: crowdfunding investment must be positive")
	}
	return nil
}
func (o *CrowdfundingInvestOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Investor, Level: AuthActive}}
}

// --- Non-fungible family ---

type NonFungibleFundCreateOp struct {
	Owner     string
	FundID    uint32
	JSONMeta  string
}

func (o *NonFungibleFundCreateOp) Type() OpType { return OpNonFungibleFundCreate }
func (o *NonFungibleFundCreateOp) Validate() error {
	return validateAccountName(o.Owner)
}
func (o *NonFungibleFundCreateOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Owner, Level: AuthActive}}
}

type NonFungibleTransferOp struct {
	From   string
	To     string
	FundID uint32
	Memo   string
}

func (o *NonFungibleTransferOp) Type() OpType { return OpNonFungibleTransfer }
func (o *NonFungibleTransferOp) Validate() error {
	if err := validateAccountName(o.From); err != nil {
		return err
	}
	return validateAccountName(o.To)
}
func (o *NonFungibleTransferOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.From, Level: AuthActive}}
}

type NonFungibleFundOnSaleOp struct {
	Owner  string
	FundID uint32
	Price  Asset
}

func (o *NonFungibleFundOnSaleOp) Type() OpType { return OpNonFungibleFundOnSale }
func (o *NonFungibleFundOnSaleOp) Validate() error {
	if err := validateAccountName(o.Owner); err != nil {
		return err
	}
	if o.Price.Sign() <= 0 {
		return fmt.Errorf("types: sale price must be positive")
	}
	return nil
}
func (o *NonFungibleFundOnSaleOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Owner, Level: AuthActive}}
}

type NonFungibleFundCancelSaleOp struct {
	Owner  string
	FundID uint32
}

func (o *NonFungibleFundCancelSaleOp) Type() OpType { return OpNonFungibleFundCancelSale }
func (o *NonFungibleFundCancelSaleOp) Validate() error {
	return validateAccountName(o.Owner)
}
func (o *NonFungibleFundCancelSaleOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Owner, Level: AuthActive}}
}

type NonFungibleFundBuyOp struct {
	Buyer  string
	Seller string
	FundID uint32
}

func (o *NonFungibleFundBuyOp) Type() OpType { return OpNonFungibleFundBuy }
func (o *NonFungibleFundBuyOp) Validate() error {
	if err := validateAccountName(o.Seller); err != nil {
		return err
	}
	return validateAccountName(o.Buyer)
}
func (o *NonFungibleFundBuyOp) RequiredAuths() []RequiredAuth {
	return []RequiredAuth{{Account: o.Buyer, Level: AuthActive}}
}

// --- Custom JSON (proxy for posting-auth-only side channel ops) ---

type CustomJSONOp struct {
	RequiredAuthAccounts        []string
	RequiredPostingAuthAccounts []string
	ID                          string
	JSON                        string
}

func (o *CustomJSONOp) Type() OpType { return OpCustomJSON }
func (o *CustomJSONOp) Validate() error {
	if len(o.ID) == 0 || len(o.ID) > 32 {
		return fmt.Errorf("types: custom_json id length out of range")
	}
	if len(o.RequiredAuthAccounts)+len(o.RequiredPostingAuthAccounts) == 0 {
		return fmt.Errorf("types: custom_json requires at least one authorizing account")
	}
	return nil
}
func (o *CustomJSONOp) RequiredAuths() []RequiredAuth {
	auths := make([]RequiredAuth, 0, len(o.RequiredAuthAccounts)+len(o.RequiredPostingAuthAccounts))
	for _, a := range o.RequiredAuthAccounts {
		auths = append(auths, RequiredAuth{Account: a, Level: AuthActive})
	}
	for _, a := range o.RequiredPostingAuthAccounts {
		auths = append(auths, RequiredAuth{Account: a, Level: AuthPosting})
	}
	return auths
}

// --- Legacy mining (pow / pow2) ---
//
// Both operations are self-authorizing: the work itself stands in for a
// signature, so RequiredAuths returns nothing and evaluation instead
// verifies WorkDigest against (PrevBlockID, WorkerAccount, Nonce). Accepted
// only below Params.PowCutoffBlockNum; rejected unconditionally once the
// head block has reached that height.

// PowOp registers a brand-new account as a witness candidate by proving
// work against the current head block, the original chain's bootstrap path
// for witnesses before any stake has been voted in.
type PowOp struct {
	WorkerAccount string
	NewOwnerKey   string
	PrevBlockID   [32]byte
	Nonce         uint64
	WorkDigest    [32]byte
}

func (o *PowOp) Type() OpType { return OpPow }
func (o *PowOp) Validate() error {
	if err := validateAccountName(o.WorkerAccount); err != nil {
		return err
	}
	if o.NewOwnerKey == "" {
		return fmt.Errorf("types: pow requires a new_owner_key")
	}
	return nil
}
func (o *PowOp) RequiredAuths() []RequiredAuth { return nil }

// Pow2Op re-proves work for an account that already exists, refreshing its
// witness candidacy without touching account keys.
type Pow2Op struct {
	WorkerAccount string
	PrevBlockID   [32]byte
	Nonce         uint64
	WorkDigest    [32]byte
}

func (o *Pow2Op) Type() OpType { return OpPow2 }
func (o *Pow2Op) Validate() error {
	return validateAccountName(o.WorkerAccount)
}
func (o *Pow2Op) RequiredAuths() []RequiredAuth { return nil }

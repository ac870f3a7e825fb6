// Package evaluator dispatches each operation kind to its own pure
// function over the mutable object store, the "single sum type with a
// per-variant match" section 9's design notes call for in place of the
// original's polymorphic visitor. Evaluators must not know about each other
// and must not share mutable state outside the store (section 9).
package evaluator

import (
	"fmt"
	"math/big"

	"gamebankcore/config"
	"gamebankcore/contract"
	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

// Context carries everything an evaluator needs beyond the store itself:
// the open session, chain parameters, the current head time/number, and a
// sink for virtual operations.
type Context struct {
	RW        objectstore.RW
	Params    config.Params
	HeadTime  int64
	HeadBlock uint64
	TxIndex   int
	OpIndex   int
	Emit      func(types.Event)

	// ContractRuntime and Hashes wire the scripted contract sandbox
	// (component E) into contract_deploy/contract_call; both are nil-safe
	// when contracts are not exercised (e.g. in tests of other evaluators).
	ContractRuntime *contract.Runtime
	Hashes          contract.BlockHashSource
}

func (c *Context) emit(t types.EventType, fieldsJSON string) {
	if c.Emit == nil {
		return
	}
	c.Emit(types.Event{
		Type:     t,
		BlockNum: c.HeadBlock,
		TxIndex:  c.TxIndex,
		OpIndex:  c.OpIndex,
		Fields:   fieldsJSON,
	})
}

// Dispatch routes a decoded operation to its evaluator (section 4.4's
// "operation evaluators").
func Dispatch(c *Context, op types.Operation) error {
	switch o := op.(type) {
	case *types.TransferOp:
		return evalTransfer(c, o)
	case *types.TransferToVestingOp:
		return evalTransferToVesting(c, o)
	case *types.WithdrawVestingOp:
		return evalWithdrawVesting(c, o)
	case *types.SetWithdrawVestingRouteOp:
		return evalSetWithdrawVestingRoute(c, o)
	case *types.AccountCreateOp:
		return evalAccountCreate(c, o)
	case *types.WitnessUpdateOp:
		return evalWitnessUpdate(c, o)
	case *types.AccountWitnessVoteOp:
		return evalAccountWitnessVote(c, o)
	case *types.AccountWitnessProxyOp:
		return evalAccountWitnessProxy(c, o)
	case *types.VoteOp:
		return evalVote(c, o)
	case *types.CommentOp:
		return evalComment(c, o)
	case *types.DeleteCommentOp:
		return evalDeleteComment(c, o)
	case *types.CommentOptionsOp:
		return evalCommentOptions(c, o)
	case *types.LimitOrderCreateOp:
		return evalLimitOrderCreate(c, o)
	case *types.LimitOrderCreate2Op:
		return evalLimitOrderCreate2(c, o)
	case *types.LimitOrderCancelOp:
		return evalLimitOrderCancel(c, o)
	case *types.ConvertOp:
		return evalConvert(c, o)
	case *types.FeedPublishOp:
		return evalFeedPublish(c, o)
	case *types.ClaimRewardBalanceOp:
		return evalClaimRewardBalance(c, o)
	case *types.DelegateVestingSharesOp:
		return evalDelegateVestingShares(c, o)
	case *types.EscrowTransferOp:
		return evalEscrowTransfer(c, o)
	case *types.EscrowApproveOp:
		return evalEscrowApprove(c, o)
	case *types.EscrowDisputeOp:
		return evalEscrowDispute(c, o)
	case *types.EscrowReleaseOp:
		return evalEscrowRelease(c, o)
	case *types.RequestAccountRecoveryOp:
		return evalRequestAccountRecovery(c, o)
	case *types.RecoverAccountOp:
		return evalRecoverAccount(c, o)
	case *types.ChangeRecoveryAccountOp:
		return evalChangeRecoveryAccount(c, o)
	case *types.DeclineVotingRightsOp:
		return evalDeclineVotingRights(c, o)
	case *types.TransferToSavingsOp:
		return evalTransferToSavings(c, o)
	case *types.TransferFromSavingsOp:
		return evalTransferFromSavings(c, o)
	case *types.CancelTransferFromSavingsOp:
		return evalCancelTransferFromSavings(c, o)
	case *types.ContractDeployOp:
		return evalContractDeploy(c, o)
	case *types.ContractCallOp:
		return evalContractCall(c, o)
	case *types.CrowdfundingCreateOp:
		return evalCrowdfundingCreate(c, o)
	case *types.CrowdfundingInvestOp:
		return evalCrowdfundingInvest(c, o)
	case *types.NonFungibleFundCreateOp:
		return evalNonFungibleFundCreate(c, o)
	case *types.NonFungibleTransferOp:
		return evalNonFungibleTransfer(c, o)
	case *types.NonFungibleFundOnSaleOp:
		return evalNonFungibleFundOnSale(c, o)
	case *types.NonFungibleFundCancelSaleOp:
		return evalNonFungibleFundCancelSale(c, o)
	case *types.NonFungibleFundBuyOp:
		return evalNonFungibleFundBuy(c, o)
	case *types.CustomJSONOp:
		return nil // custom_json has no state effect in the core; observers subscribe externally
	case *types.PowOp:
		return evalPow(c, o)
	case *types.Pow2Op:
		return evalPow2(c, o)
	default:
		return fmt.Errorf("evaluator: no evaluator registered for %s", op.Type())
	}
}

func requireAccount(c *Context, name string) (types.Account, error) {
	return state.MustGetAccount(c.RW, name)
}

func sharePrice(g types.GlobalDynamicProperties) *big.Rat {
	fund := g.TotalVestingFund.Amount
	shares := g.TotalVestingShares.Amount
	if shares == nil || shares.Sign() == 0 {
		return big.NewRat(1, 1)
	}
	return new(big.Rat).SetFrac(fund, shares)
}

// liquidToVesting converts a liquid amount into vesting shares at the
// current global share price.
func liquidToVesting(g types.GlobalDynamicProperties, liquid *big.Int) *big.Int {
	price := sharePrice(g)
	num := new(big.Int).Mul(liquid, price.Denom())
	return new(big.Int).Quo(num, price.Num())
}

// vestingToLiquid converts vesting shares into a liquid amount at the
// current global share price.
func vestingToLiquid(g types.GlobalDynamicProperties, shares *big.Int) *big.Int {
	price := sharePrice(g)
	num := new(big.Int).Mul(shares, price.Num())
	return new(big.Int).Quo(num, price.Denom())
}

// zeroAmount returns a fresh zero big.Int, used wherever a possibly-nil
// Asset.Amount needs a safe default before arithmetic.
func zeroAmount() *big.Int { return big.NewInt(0) }

// amountHelper gathers nil-safe big.Int arithmetic helpers so evaluators
// never need to guard against a nil Asset.Amount inline.
type amountHelper struct{}

func (amountHelper) sub(a, b *big.Int) *big.Int {
	if a == nil {
		a = zeroAmount()
	}
	if b == nil {
		b = zeroAmount()
	}
	return new(big.Int).Sub(a, b)
}

func (amountHelper) negate(a *big.Int) *big.Int {
	if a == nil {
		return zeroAmount()
	}
	return new(big.Int).Neg(a)
}

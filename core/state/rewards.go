package state

import (
	"math/big"

	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var rewardFundTable = objectstore.NewTable[types.RewardFund]("rewardfund/")
var liquidityRewardTable = objectstore.NewTable[types.LiquidityRewardBalance]("liquidityreward/")

// GetRewardFund looks up a named content reward fund.
func GetRewardFund(rw objectstore.RW, name string) (types.RewardFund, bool, error) {
	return rewardFundTable.Get(rw, []byte(name))
}

// InitRewardFund creates a reward fund; the caller must have already
// verified it does not exist.
func InitRewardFund(rw objectstore.RW, f types.RewardFund) error {
	return rewardFundTable.Put(rw, []byte(f.Name), f)
}

// ModifyRewardFund applies a read-modify-write mutation to an existing
// reward fund (section 4.5's inflation split and comment cashout passes).
func ModifyRewardFund(rw objectstore.RW, name string, mutate func(*types.RewardFund)) error {
	return rewardFundTable.Modify(rw, []byte(name), mutate)
}

// IterateRewardFunds scans every reward fund, for pro-rating inflation
// across funds by their declared percent.
func IterateRewardFunds(rw objectstore.RW, fn func(types.RewardFund) (bool, error)) error {
	return rewardFundTable.Iterate(rw, func(_ []byte, f types.RewardFund) (bool, error) {
		return fn(f)
	})
}

// GetLiquidityRewardBalance looks up an account's accrued market-making
// volume for the periodic liquidity reward payout.
func GetLiquidityRewardBalance(rw objectstore.RW, account string) (types.LiquidityRewardBalance, bool, error) {
	return liquidityRewardTable.Get(rw, []byte(account))
}

// ModifyLiquidityRewardBalance applies a read-modify-write mutation,
// initializing a zeroed balance first if the account has none yet.
func ModifyLiquidityRewardBalance(rw objectstore.RW, account string, mutate func(*types.LiquidityRewardBalance)) error {
	b, ok, err := liquidityRewardTable.Get(rw, []byte(account))
	if err != nil {
		return err
	}
	if !ok {
		b = types.LiquidityRewardBalance{
			Account:      account,
			LiquidVolume: big.NewInt(0),
			DebtVolume:   big.NewInt(0),
			Weight:       big.NewInt(0),
		}
	}
	mutate(&b)
	return liquidityRewardTable.Put(rw, []byte(account), b)
}

// RemoveLiquidityRewardBalance clears an account's accrued volume after it
// has been paid out.
func RemoveLiquidityRewardBalance(rw objectstore.RW, account string) error {
	return liquidityRewardTable.Remove(rw, []byte(account))
}

// IterateLiquidityRewardBalances scans every account with accrued
// market-making volume, ranked by nothing in particular: the payout pass
// itself ranks by Weight after collecting the full set.
func IterateLiquidityRewardBalances(rw objectstore.RW, fn func(types.LiquidityRewardBalance) (bool, error)) error {
	return liquidityRewardTable.Iterate(rw, func(_ []byte, b types.LiquidityRewardBalance) (bool, error) {
		return fn(b)
	})
}

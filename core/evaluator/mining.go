package evaluator

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/crypto"
)

// checkPowCutoff rejects mining ops once the head block has reached the
// configured cutoff height; a zero cutoff (the default) disables legacy
// mining entirely.
func checkPowCutoff(c *Context) error {
	if c.HeadBlock >= c.Params.PowCutoffBlockNum {
		return fmt.Errorf("evaluator: pow: rejected at block %d (cutoff %d)", c.HeadBlock, c.Params.PowCutoffBlockNum)
	}
	return nil
}

// verifyWork recomputes the work digest from (prevBlockID, worker, nonce)
// and checks it against the claimed digest and the configured difficulty.
// When c.Hashes is unset (e.g. evaluator tests that don't exercise the
// block log), the previous-block-id check is skipped rather than treated
// as a hard failure, matching the nil-safety contract_call already grants
// ContractRuntime/Hashes.
func verifyWork(c *Context, prevBlockID [32]byte, worker string, nonce uint64, claimed [32]byte) error {
	if c.Hashes != nil && c.HeadBlock > 0 {
		want, ok := c.Hashes.BlockDigestAt(c.HeadBlock - 1)
		if ok && want != prevBlockID {
			return fmt.Errorf("evaluator: pow: prev_block_id does not match block %d", c.HeadBlock-1)
		}
	}
	nonceBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBytes, nonce)
	got := crypto.Keccak256(prevBlockID[:], []byte(worker), nonceBytes)
	var gotDigest [32]byte
	copy(gotDigest[:], got)
	if gotDigest != claimed {
		return fmt.Errorf("evaluator: pow: claimed work digest does not match recomputed digest")
	}
	if leadingZeroBits(claimed) < c.Params.PowMinLeadingZeroBits {
		return fmt.Errorf("evaluator: pow: work digest does not meet difficulty")
	}
	return nil
}

func leadingZeroBits(digest [32]byte) int {
	bits := 0
	for _, b := range digest {
		if b == 0 {
			bits += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return bits
			}
			bits++
		}
	}
	return bits
}

// registerMinerCandidacy creates or refreshes owner's witness record so it
// becomes eligible for a MAX_MINER schedule slot (section 4.5), using
// signingKey only when no witness record exists yet.
func registerMinerCandidacy(c *Context, owner, signingKey string) error {
	_, exists, err := state.GetWitness(c.RW, owner)
	if err != nil {
		return err
	}
	if !exists {
		return state.PutWitness(c.RW, types.Witness{
			Owner:                owner,
			SigningKey:           signingKey,
			Votes:                big.NewInt(0),
			VirtualPosition:      big.NewInt(0),
			VirtualScheduledTime: big.NewInt(0),
			CreatedUnix:          c.HeadTime,
			LastPowBlockNum:      c.HeadBlock,
		})
	}
	return state.ModifyWitness(c.RW, owner, func(w *types.Witness) {
		w.LastPowBlockNum = c.HeadBlock
	})
}

// evalPow bootstraps a brand-new account and registers it as a miner
// candidate in one step, the original chain's pre-stake witness onboarding
// path (section 4.4's "pow / pow2: legacy mining operations").
func evalPow(c *Context, op *types.PowOp) error {
	if err := checkPowCutoff(c); err != nil {
		return err
	}
	if _, ok, err := state.GetAccount(c.RW, op.WorkerAccount); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: pow: account %q already exists, use pow2", op.WorkerAccount)
	}
	if err := verifyWork(c, op.PrevBlockID, op.WorkerAccount, op.Nonce, op.WorkDigest); err != nil {
		return err
	}

	owner := types.Authority{WeightThreshold: 1, Entries: []types.AuthorityEntry{{Key: op.NewOwnerKey, Weight: 1}}}
	if err := state.CreateAccount(c.RW, types.Account{
		Name:                   op.WorkerAccount,
		Owner:                  owner,
		Active:                 owner,
		Posting:                owner,
		MemoKey:                op.NewOwnerKey,
		Balance:                types.Zero(types.AssetLiquid),
		DebtBalance:            types.Zero(types.AssetDebt),
		SavingsBalance:         types.Zero(types.AssetLiquid),
		SavingsDebtBalance:     types.Zero(types.AssetDebt),
		RewardLiquidBalance:    types.Zero(types.AssetLiquid),
		RewardDebtBalance:      types.Zero(types.AssetDebt),
		RewardVestingBalance:   types.Zero(types.AssetLiquid),
		RewardVestingShares:    types.Zero(types.AssetVesting),
		VestingShares:          types.Zero(types.AssetVesting),
		DelegatedVestingShares: types.Zero(types.AssetVesting),
		ReceivedVestingShares:  types.Zero(types.AssetVesting),
		VestingWithdrawRate:    types.Zero(types.AssetVesting),
		ToWithdraw:             big.NewInt(0),
		Withdrawn:              big.NewInt(0),
		VotingPower:            10000,
		RecoveryAccount:        op.WorkerAccount,
		CreatedUnix:            c.HeadTime,
		CanVote:                true,
		InterestSecondsBalance: big.NewInt(0),
		LastInterestUpdateUnix: c.HeadTime,
		ProxiedVSFShares:       [4]*big.Int{big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0)},
	}); err != nil {
		return err
	}
	return registerMinerCandidacy(c, op.WorkerAccount, op.NewOwnerKey)
}

// evalPow2 re-proves work for an account that already exists, refreshing
// its miner candidacy without touching its keys.
func evalPow2(c *Context, op *types.Pow2Op) error {
	if err := checkPowCutoff(c); err != nil {
		return err
	}
	account, err := requireAccount(c, op.WorkerAccount)
	if err != nil {
		return err
	}
	if err := verifyWork(c, op.PrevBlockID, op.WorkerAccount, op.Nonce, op.WorkDigest); err != nil {
		return err
	}
	signingKey := account.MemoKey
	if len(account.Active.Entries) > 0 && account.Active.Entries[0].Key != "" {
		signingKey = account.Active.Entries[0].Key
	}
	return registerMinerCandidacy(c, op.WorkerAccount, signingKey)
}

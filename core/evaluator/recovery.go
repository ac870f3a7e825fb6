package evaluator

import (
	"fmt"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

func authoritiesEqual(a, b types.Authority) bool {
	if a.WeightThreshold != b.WeightThreshold || len(a.Entries) != len(b.Entries) {
		return false
	}
	for i := range a.Entries {
		if a.Entries[i] != b.Entries[i] {
			return false
		}
	}
	return true
}

func evalRequestAccountRecovery(c *Context, op *types.RequestAccountRecoveryOp) error {
	acct, err := requireAccount(c, op.AccountToRecover)
	if err != nil {
		return err
	}
	if acct.RecoveryAccount != op.RecoveryAccount {
		return fmt.Errorf("evaluator: request_account_recovery: %s is not the recovery partner of %s", op.RecoveryAccount, op.AccountToRecover)
	}
	if len(op.NewOwner.Entries) == 0 {
		return state.RemoveAccountRecoveryRequest(c.RW, op.AccountToRecover)
	}
	return state.PutAccountRecoveryRequest(c.RW, types.AccountRecoveryRequest{
		AccountToRecover:  op.AccountToRecover,
		NewOwnerAuthority: op.NewOwner,
		ExpiresUnix:       c.HeadTime + c.Params.MaxExpirationSeconds,
	})
}

func evalRecoverAccount(c *Context, op *types.RecoverAccountOp) error {
	acct, err := requireAccount(c, op.AccountToRecover)
	if err != nil {
		return err
	}
	req, ok, err := state.GetAccountRecoveryRequest(c.RW, op.AccountToRecover)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: recover_account: no pending recovery request for %s", op.AccountToRecover)
	}
	if req.ExpiresUnix <= c.HeadTime {
		return fmt.Errorf("evaluator: recover_account: recovery request for %s has expired", op.AccountToRecover)
	}
	if !authoritiesEqual(op.NewOwner, req.NewOwnerAuthority) {
		return fmt.Errorf("evaluator: recover_account: new_owner_authority does not match the pending request")
	}
	if !authoritiesEqual(op.RecentOwner, acct.Owner) {
		found := false
		history, err := state.RecentOwnerAuthorities(c.RW, op.AccountToRecover)
		if err != nil {
			return err
		}
		cutoff := c.HeadTime - c.Params.OwnerAuthHistoryRetentionSeconds
		for _, h := range history {
			if h.LastValidUnix >= cutoff && authoritiesEqual(op.RecentOwner, h.PreviousOwner) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("evaluator: recover_account: recent_owner_authority is not recognized within the retention window")
		}
	}
	if err := state.PutOwnerAuthHistory(c.RW, types.OwnerAuthHistory{
		Account:       op.AccountToRecover,
		PreviousOwner: acct.Owner,
		LastValidUnix: c.HeadTime,
	}); err != nil {
		return err
	}
	if err := state.ModifyAccount(c.RW, op.AccountToRecover, func(a *types.Account) {
		a.Owner = op.NewOwner
	}); err != nil {
		return err
	}
	return state.RemoveAccountRecoveryRequest(c.RW, op.AccountToRecover)
}

func evalChangeRecoveryAccount(c *Context, op *types.ChangeRecoveryAccountOp) error {
	if _, err := requireAccount(c, op.AccountToRecover); err != nil {
		return err
	}
	if _, err := requireAccount(c, op.NewRecoveryAccount); err != nil {
		return err
	}
	return state.PutChangeRecoveryAccountRequest(c.RW, types.ChangeRecoveryAccountRequest{
		AccountToRecover:   op.AccountToRecover,
		NewRecoveryAccount: op.NewRecoveryAccount,
		EffectiveUnix:      c.HeadTime + c.Params.ChangeRecoveryAccountDelaySeconds,
	})
}

func evalDeclineVotingRights(c *Context, op *types.DeclineVotingRightsOp) error {
	if _, err := requireAccount(c, op.Account); err != nil {
		return err
	}
	if !op.Decline {
		return state.RemoveDeclineVotingRightsRequest(c.RW, op.Account)
	}
	return state.PutDeclineVotingRightsRequest(c.RW, types.DeclineVotingRightsRequest{
		Account:       op.Account,
		EffectiveUnix: c.HeadTime + c.Params.MaxExpirationSeconds,
	})
}

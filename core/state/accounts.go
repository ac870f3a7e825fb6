package state

import (
	"fmt"

	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var accountsTable = objectstore.NewTable[types.Account](types.AccountsPrefix)
var accountByWithdrawalIndex = objectstore.NewIndex("acct/bywithdrawal/")

// GetAccount loads an account by name.
func GetAccount(rw objectstore.RW, name string) (types.Account, bool, error) {
	return accountsTable.Get(rw, []byte(name))
}

// MustGetAccount loads an account by name or fails.
func MustGetAccount(rw objectstore.RW, name string) (types.Account, error) {
	return accountsTable.MustGet(rw, []byte(name))
}

// CreateAccount inserts a brand new account; the caller must have already
// verified the name is free.
func CreateAccount(rw objectstore.RW, acct types.Account) error {
	if _, ok, _ := accountsTable.Get(rw, []byte(acct.Name)); ok {
		return fmt.Errorf("state: account %q already exists", acct.Name)
	}
	if acct.NextVestingWithdrawal > 0 {
		if err := accountByWithdrawalIndex.Put(rw, expirationIndexKey(acct.NextVestingWithdrawal), []byte(acct.Name)); err != nil {
			return err
		}
	}
	return accountsTable.Put(rw, []byte(acct.Name), acct)
}

// ModifyAccount applies a read-modify-write mutation to an existing
// account, re-keying the by-next-withdrawal index if that field changed
// (section 4.5's vesting withdrawal pass).
func ModifyAccount(rw objectstore.RW, name string, mutate func(*types.Account)) error {
	a, err := accountsTable.MustGet(rw, []byte(name))
	if err != nil {
		return err
	}
	oldNext := a.NextVestingWithdrawal
	mutate(&a)
	if oldNext != a.NextVestingWithdrawal {
		if oldNext > 0 {
			if err := accountByWithdrawalIndex.Delete(rw, expirationIndexKey(oldNext), []byte(name)); err != nil {
				return err
			}
		}
		if a.NextVestingWithdrawal > 0 {
			if err := accountByWithdrawalIndex.Put(rw, expirationIndexKey(a.NextVestingWithdrawal), []byte(name)); err != nil {
				return err
			}
		}
	}
	return accountsTable.Put(rw, []byte(name), a)
}

// DueVestingWithdrawals returns account names whose next scheduled
// power-down payment is due, in withdrawal-time order.
func DueVestingWithdrawals(rw objectstore.RW, headTime int64, limit int) ([]string, error) {
	var due []string
	err := accountByWithdrawalIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		a, ok, err := accountsTable.Get(rw, id)
		if err != nil || !ok {
			return true, err
		}
		if a.NextVestingWithdrawal > headTime {
			return false, nil
		}
		due = append(due, a.Name)
		return len(due) < limit, nil
	})
	return due, err
}

// IterateAccounts scans every account in name order.
func IterateAccounts(rw objectstore.RW, fn func(types.Account) (bool, error)) error {
	return accountsTable.Iterate(rw, func(_ []byte, a types.Account) (bool, error) {
		return fn(a)
	})
}

var ownerHistoryTable = objectstore.NewTable[types.OwnerAuthHistory]("acct/ownerhist/")
var recoveryReqTable = objectstore.NewTable[types.AccountRecoveryRequest]("acct/recoveryreq/")
var changeRecoveryReqTable = objectstore.NewTable[types.ChangeRecoveryAccountRequest]("acct/changerecovery/")
var declineVotingReqTable = objectstore.NewTable[types.DeclineVotingRightsRequest]("acct/declinevote/")
var withdrawRouteTable = objectstore.NewTable[types.WithdrawRoute]("acct/withdrawroute/")
var delegationTable = objectstore.NewTable[types.VestingDelegation]("acct/delegation/")
var delegationExpirationTable = objectstore.NewTable[types.VestingDelegationExpiration]("acct/delegationexp/")

func ownerHistoryKey(account string, lastValidUnix int64) []byte {
	return []byte(fmt.Sprintf("%s/%020d", account, lastValidUnix))
}

// PutOwnerAuthHistory records a replaced owner authority for the 30-day
// recovery retention window.
func PutOwnerAuthHistory(rw objectstore.RW, h types.OwnerAuthHistory) error {
	return ownerHistoryTable.Put(rw, ownerHistoryKey(h.Account, h.LastValidUnix), h)
}

// RecentOwnerAuthorities returns every retained prior owner authority for an
// account, most recent last.
func RecentOwnerAuthorities(rw objectstore.RW, account string) ([]types.OwnerAuthHistory, error) {
	var out []types.OwnerAuthHistory
	prefix := []byte(account + "/")
	err := ownerHistoryTable.Iterate(rw, func(id []byte, h types.OwnerAuthHistory) (bool, error) {
		if h.Account == account {
			out = append(out, h)
		}
		_ = prefix
		return true, nil
	})
	return out, err
}

// PutAccountRecoveryRequest records or replaces a pending recovery request.
func PutAccountRecoveryRequest(rw objectstore.RW, r types.AccountRecoveryRequest) error {
	return recoveryReqTable.Put(rw, []byte(r.AccountToRecover), r)
}

// GetAccountRecoveryRequest looks up a pending recovery request.
func GetAccountRecoveryRequest(rw objectstore.RW, account string) (types.AccountRecoveryRequest, bool, error) {
	return recoveryReqTable.Get(rw, []byte(account))
}

// RemoveAccountRecoveryRequest clears a pending recovery request.
func RemoveAccountRecoveryRequest(rw objectstore.RW, account string) error {
	return recoveryReqTable.Remove(rw, []byte(account))
}

// PutChangeRecoveryAccountRequest records a delayed recovery-account change.
func PutChangeRecoveryAccountRequest(rw objectstore.RW, r types.ChangeRecoveryAccountRequest) error {
	return changeRecoveryReqTable.Put(rw, []byte(r.AccountToRecover), r)
}

// DueChangeRecoveryAccountRequests returns requests whose effective time has
// passed (section 4.4 step 16).
func DueChangeRecoveryAccountRequests(rw objectstore.RW, headTime int64) ([]types.ChangeRecoveryAccountRequest, error) {
	var due []types.ChangeRecoveryAccountRequest
	err := changeRecoveryReqTable.Iterate(rw, func(_ []byte, r types.ChangeRecoveryAccountRequest) (bool, error) {
		if r.EffectiveUnix <= headTime {
			due = append(due, r)
		}
		return true, nil
	})
	return due, err
}

// RemoveChangeRecoveryAccountRequest clears a processed request.
func RemoveChangeRecoveryAccountRequest(rw objectstore.RW, account string) error {
	return changeRecoveryReqTable.Remove(rw, []byte(account))
}

// PutDeclineVotingRightsRequest records a delayed decline-voting-rights
// request.
func PutDeclineVotingRightsRequest(rw objectstore.RW, r types.DeclineVotingRightsRequest) error {
	return declineVotingReqTable.Put(rw, []byte(r.Account), r)
}

// DueDeclineVotingRightsRequests returns requests whose effective time has
// passed.
func DueDeclineVotingRightsRequests(rw objectstore.RW, headTime int64) ([]types.DeclineVotingRightsRequest, error) {
	var due []types.DeclineVotingRightsRequest
	err := declineVotingReqTable.Iterate(rw, func(_ []byte, r types.DeclineVotingRightsRequest) (bool, error) {
		if r.EffectiveUnix <= headTime {
			due = append(due, r)
		}
		return true, nil
	})
	return due, err
}

// RemoveDeclineVotingRightsRequest clears a processed request.
func RemoveDeclineVotingRightsRequest(rw objectstore.RW, account string) error {
	return declineVotingReqTable.Remove(rw, []byte(account))
}

func withdrawRouteKey(from, to string) []byte {
	return []byte(from + "/" + to)
}

// SetWithdrawRoute creates, updates, or (when percentBps is zero) removes a
// withdraw route.
func SetWithdrawRoute(rw objectstore.RW, r types.WithdrawRoute) error {
	if r.PercentBps == 0 {
		return withdrawRouteTable.Remove(rw, withdrawRouteKey(r.From, r.To))
	}
	return withdrawRouteTable.Put(rw, withdrawRouteKey(r.From, r.To), r)
}

// WithdrawRoutesFor returns every route configured for an account's
// power-down stream.
func WithdrawRoutesFor(rw objectstore.RW, from string) ([]types.WithdrawRoute, error) {
	var out []types.WithdrawRoute
	err := withdrawRouteTable.Iterate(rw, func(_ []byte, r types.WithdrawRoute) (bool, error) {
		if r.From == from {
			out = append(out, r)
		}
		return true, nil
	})
	return out, err
}

func delegationKey(delegator, delegatee string) []byte {
	return []byte(delegator + "/" + delegatee)
}

// PutDelegation creates or replaces a vesting delegation record.
func PutDelegation(rw objectstore.RW, d types.VestingDelegation) error {
	return delegationTable.Put(rw, delegationKey(d.Delegator, d.Delegatee), d)
}

// GetDelegation looks up a vesting delegation.
func GetDelegation(rw objectstore.RW, delegator, delegatee string) (types.VestingDelegation, bool, error) {
	return delegationTable.Get(rw, delegationKey(delegator, delegatee))
}

// RemoveDelegation deletes a fully-withdrawn delegation.
func RemoveDelegation(rw objectstore.RW, delegator, delegatee string) error {
	return delegationTable.Remove(rw, delegationKey(delegator, delegatee))
}

// QueueDelegationExpiration schedules a delegation decrease's delayed
// return of vesting shares to the delegator.
func QueueDelegationExpiration(rw objectstore.RW, e types.VestingDelegationExpiration) error {
	return delegationExpirationTable.Put(rw, []byte(fmt.Sprintf("%020d", e.ID)), e)
}

// DueDelegationExpirations returns queued returns whose expiration has
// passed.
func DueDelegationExpirations(rw objectstore.RW, headTime int64) ([]types.VestingDelegationExpiration, error) {
	var due []types.VestingDelegationExpiration
	err := delegationExpirationTable.Iterate(rw, func(_ []byte, e types.VestingDelegationExpiration) (bool, error) {
		if e.ExpirationUnix <= headTime {
			due = append(due, e)
		}
		return true, nil
	})
	return due, err
}

// RemoveDelegationExpiration clears a processed queue entry.
func RemoveDelegationExpiration(rw objectstore.RW, id uint64) error {
	return delegationExpirationTable.Remove(rw, []byte(fmt.Sprintf("%020d", id)))
}

package state

import (
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var crowdfundingTable = objectstore.NewTable[types.Crowdfunding]("crowdfund/")
var crowdfundingByExpIndex = objectstore.NewIndex("crowdfund/byexp/")
var crowdfundingInvestTable = objectstore.NewTable[types.CrowdfundingInvest]("crowdfundinvest/")

// GetCrowdfunding looks up a fund by (originator, fund id).
func GetCrowdfunding(rw objectstore.RW, originator string, fundID uint32) (types.Crowdfunding, bool, error) {
	return crowdfundingTable.Get(rw, []byte(types.CrowdfundingKey(originator, fundID)))
}

// PutCrowdfunding creates or replaces a fund, indexed by expiration.
func PutCrowdfunding(rw objectstore.RW, c types.Crowdfunding) error {
	id := []byte(types.CrowdfundingKey(c.Originator, c.FundID))
	if old, ok, err := crowdfundingTable.Get(rw, id); err != nil {
		return err
	} else if ok && old.ExpirationUnix != c.ExpirationUnix {
		if err := crowdfundingByExpIndex.Delete(rw, expirationIndexKey(old.ExpirationUnix), id); err != nil {
			return err
		}
	}
	if err := crowdfundingTable.Put(rw, id, c); err != nil {
		return err
	}
	return crowdfundingByExpIndex.Put(rw, expirationIndexKey(c.ExpirationUnix), id)
}

// ModifyCrowdfunding applies a read-modify-write mutation.
func ModifyCrowdfunding(rw objectstore.RW, originator string, fundID uint32, mutate func(*types.Crowdfunding)) error {
	id := []byte(types.CrowdfundingKey(originator, fundID))
	c, err := crowdfundingTable.MustGet(rw, id)
	if err != nil {
		return err
	}
	mutate(&c)
	return crowdfundingTable.Put(rw, id, c)
}

// ExpiredCrowdfundings returns unfinished funds whose expiration has passed
// (section 4.5's crowdfunding expiry pass).
func ExpiredCrowdfundings(rw objectstore.RW, headTime int64, limit int) ([]types.Crowdfunding, error) {
	var due []types.Crowdfunding
	err := crowdfundingByExpIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		c, ok, err := crowdfundingTable.Get(rw, id)
		if err != nil || !ok {
			return true, err
		}
		if c.ExpirationUnix > headTime {
			return false, nil
		}
		if !c.Finished {
			due = append(due, c)
		}
		return len(due) < limit, nil
	})
	return due, err
}

// PutCrowdfundingInvest records an investor's pledge.
func PutCrowdfundingInvest(rw objectstore.RW, inv types.CrowdfundingInvest) error {
	return crowdfundingInvestTable.Put(rw, []byte(types.CrowdfundingInvestKey(inv.Originator, inv.FundID, inv.Investor)), inv)
}

// InvestorsIn returns every pledge recorded against a fund, for refund or
// payout iteration.
func InvestorsIn(rw objectstore.RW, originator string, fundID uint32) ([]types.CrowdfundingInvest, error) {
	var out []types.CrowdfundingInvest
	err := crowdfundingInvestTable.Iterate(rw, func(_ []byte, inv types.CrowdfundingInvest) (bool, error) {
		if inv.Originator == originator && inv.FundID == fundID {
			out = append(out, inv)
		}
		return true, nil
	})
	return out, err
}

// RemoveCrowdfundingInvest deletes a processed (refunded or settled) pledge.
func RemoveCrowdfundingInvest(rw objectstore.RW, originator string, fundID uint32, investor string) error {
	return crowdfundingInvestTable.Remove(rw, []byte(types.CrowdfundingInvestKey(originator, fundID, investor)))
}

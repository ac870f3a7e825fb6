package evaluator

import (
	"fmt"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

func evalNonFungibleFundCreate(c *Context, op *types.NonFungibleFundCreateOp) error {
	if _, err := requireAccount(c, op.Owner); err != nil {
		return err
	}
	if _, ok, err := state.GetNonFungibleFund(c.RW, op.Owner, op.FundID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: nonfungible_fund_create: fund %d already exists for %s", op.FundID, op.Owner)
	}
	return state.CreateNonFungibleFund(c.RW, types.NonFungibleFund{
		Owner:       op.Owner,
		FundID:      op.FundID,
		JSONMeta:    op.JSONMeta,
		CreatedUnix: c.HeadTime,
	})
}

func evalNonFungibleTransfer(c *Context, op *types.NonFungibleTransferOp) error {
	if _, err := requireAccount(c, op.From); err != nil {
		return err
	}
	if _, err := requireAccount(c, op.To); err != nil {
		return err
	}
	if _, ok, err := state.GetNonFungibleFund(c.RW, op.From, op.FundID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("evaluator: nonfungible_transfer: %s does not own fund %d", op.From, op.FundID)
	}
	if _, ok, err := state.GetListing(c.RW, op.From, op.FundID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: nonfungible_transfer: fund %d is listed for sale; cancel the listing first", op.FundID)
	}
	return state.TransferNonFungibleFund(c.RW, op.From, op.To, op.FundID)
}

func evalNonFungibleFundOnSale(c *Context, op *types.NonFungibleFundOnSaleOp) error {
	if _, err := requireAccount(c, op.Owner); err != nil {
		return err
	}
	if _, ok, err := state.GetNonFungibleFund(c.RW, op.Owner, op.FundID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("evaluator: nonfungible_fund_on_sale: %s does not own fund %d", op.Owner, op.FundID)
	}
	return state.ListForSale(c.RW, types.NonFungibleFundOnSale{
		Owner:          op.Owner,
		FundID:         op.FundID,
		Price:          op.Price,
		ListedUnix:     c.HeadTime,
		ExpirationUnix: c.HeadTime + c.Params.NonFungibleListingTTLSeconds,
	})
}

func evalNonFungibleFundCancelSale(c *Context, op *types.NonFungibleFundCancelSaleOp) error {
	if _, ok, err := state.GetListing(c.RW, op.Owner, op.FundID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("evaluator: nonfungible_fund_cancel_sale: fund %d is not listed for %s", op.FundID, op.Owner)
	}
	return state.CancelListing(c.RW, op.Owner, op.FundID)
}

func evalNonFungibleFundBuy(c *Context, op *types.NonFungibleFundBuyOp) error {
	buyer, err := requireAccount(c, op.Buyer)
	if err != nil {
		return err
	}
	if _, err := requireAccount(c, op.Seller); err != nil {
		return err
	}
	listing, ok, err := state.GetListing(c.RW, op.Seller, op.FundID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: nonfungible_fund_buy: fund %d is not listed for sale by %s", op.FundID, op.Seller)
	}
	var bal *types.Asset
	if listing.Price.Kind == types.AssetLiquid {
		bal = &buyer.Balance
	} else {
		bal = &buyer.DebtBalance
	}
	if bal.Amount.Cmp(listing.Price.Amount) < 0 {
		return fmt.Errorf("evaluator: nonfungible_fund_buy: %s has insufficient balance", op.Buyer)
	}
	if err := state.ModifyAccount(c.RW, op.Buyer, func(a *types.Account) {
		if listing.Price.Kind == types.AssetLiquid {
			a.Balance.Amount.Sub(a.Balance.Amount, listing.Price.Amount)
		} else {
			a.DebtBalance.Amount.Sub(a.DebtBalance.Amount, listing.Price.Amount)
		}
	}); err != nil {
		return err
	}
	if err := state.ModifyAccount(c.RW, op.Seller, func(a *types.Account) {
		if listing.Price.Kind == types.AssetLiquid {
			a.Balance.Amount.Add(a.Balance.Amount, listing.Price.Amount)
		} else {
			a.DebtBalance.Amount.Add(a.DebtBalance.Amount, listing.Price.Amount)
		}
	}); err != nil {
		return err
	}
	if err := state.CancelListing(c.RW, op.Seller, op.FundID); err != nil {
		return err
	}
	return state.TransferNonFungibleFund(c.RW, op.Seller, op.Buyer, op.FundID)
}

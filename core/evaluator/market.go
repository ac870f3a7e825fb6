package evaluator

import (
	"fmt"
	"math/big"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

func evalLimitOrderCreate(c *Context, op *types.LimitOrderCreateOp) error {
	return createLimitOrder(c, op.Owner, op.OrderID, op.AmountToSell, types.PriceFeed{Base: op.AmountToSell, Quote: op.MinToReceive}, op.FillOrKill, op.ExpirationUnix)
}

func evalLimitOrderCreate2(c *Context, op *types.LimitOrderCreate2Op) error {
	return createLimitOrder(c, op.Owner, op.OrderID, op.AmountToSell, types.PriceFeed{Base: op.PriceBase, Quote: op.PriceQuote}, op.FillOrKill, op.ExpirationUnix)
}

func createLimitOrder(c *Context, owner string, orderID uint32, amountToSell types.Asset, price types.PriceFeed, fillOrKill bool, expirationUnix int64) error {
	seller, err := requireAccount(c, owner)
	if err != nil {
		return err
	}
	if _, ok, err := state.GetLimitOrder(c.RW, owner, orderID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: limit_order_create: order %d already exists for %s", orderID, owner)
	}
	var bal *big.Int
	if amountToSell.Kind == types.AssetLiquid {
		bal = seller.Balance.Amount
	} else {
		bal = seller.DebtBalance.Amount
	}
	if bal.Cmp(amountToSell.Amount) < 0 {
		return fmt.Errorf("evaluator: limit_order_create: %s has insufficient balance", owner)
	}
	if err := state.ModifyAccount(c.RW, owner, func(a *types.Account) {
		if amountToSell.Kind == types.AssetLiquid {
			a.Balance.Amount.Sub(a.Balance.Amount, amountToSell.Amount)
		} else {
			a.DebtBalance.Amount.Sub(a.DebtBalance.Amount, amountToSell.Amount)
		}
	}); err != nil {
		return err
	}

	remaining := new(big.Int).Set(amountToSell.Amount)
	opposingKind := types.AssetDebt
	if amountToSell.Kind == types.AssetDebt {
		opposingKind = types.AssetLiquid
	}
	var matchErr error
	walkErr := state.OrdersOnSideOf(c.RW, opposingKind, func(resting types.LimitOrder) (bool, error) {
		if remaining.Sign() <= 0 {
			return false, nil
		}
		// A resting order crosses ours when its price (what it wants per unit
		// offered) is no better, for the taker, than ours inverted.
		lhs := new(big.Int).Mul(price.Quote.Amount, resting.SellPrice.Quote.Amount)
		rhs := new(big.Int).Mul(price.Base.Amount, resting.SellPrice.Base.Amount)
		if lhs.Cmp(rhs) > 0 {
			return false, nil
		}
		fillQty := new(big.Int).Mul(remaining, resting.SellPrice.Base.Amount)
		fillQty.Quo(fillQty, resting.SellPrice.Quote.Amount)
		if fillQty.Cmp(resting.ForSale.Amount) > 0 {
			fillQty = new(big.Int).Set(resting.ForSale.Amount)
		}
		payQty := new(big.Int).Mul(fillQty, resting.SellPrice.Quote.Amount)
		payQty.Quo(payQty, resting.SellPrice.Base.Amount)
		if payQty.Sign() <= 0 || fillQty.Sign() <= 0 {
			return false, nil
		}
		if err := state.ModifyAccount(c.RW, resting.Seller, func(a *types.Account) {
			credit(a, amountToSell.Kind, payQty)
		}); err != nil {
			matchErr = err
			return false, nil
		}
		if err := state.ModifyAccount(c.RW, owner, func(a *types.Account) {
			credit(a, resting.ForSale.Kind, fillQty)
		}); err != nil {
			matchErr = err
			return false, nil
		}
		remaining = new(big.Int).Sub(remaining, payQty)
		newRestingForSale := new(big.Int).Sub(resting.ForSale.Amount, fillQty)
		if newRestingForSale.Sign() <= 0 {
			matchErr = state.RemoveLimitOrder(c.RW, resting.Seller, resting.OrderID)
		} else {
			resting.ForSale.Amount = newRestingForSale
			matchErr = state.PutLimitOrder(c.RW, resting)
		}
		if matchErr != nil {
			return false, nil
		}
		return remaining.Sign() > 0, nil
	})
	if walkErr != nil {
		return walkErr
	}
	if matchErr != nil {
		return matchErr
	}

	if remaining.Sign() > 0 {
		if fillOrKill {
			return fmt.Errorf("evaluator: limit_order_create: fill_or_kill order for %s could not be fully matched", owner)
		}
		return state.PutLimitOrder(c.RW, types.LimitOrder{
			Seller:         owner,
			OrderID:        orderID,
			ForSale:        types.NewAsset(amountToSell.Kind, remaining),
			SellPrice:      price,
			CreatedUnix:    c.HeadTime,
			ExpirationUnix: expirationUnix,
		})
	}
	return nil
}

func credit(a *types.Account, kind types.AssetKind, amount *big.Int) {
	if kind == types.AssetLiquid {
		a.Balance.Amount.Add(a.Balance.Amount, amount)
	} else {
		a.DebtBalance.Amount.Add(a.DebtBalance.Amount, amount)
	}
}

func evalLimitOrderCancel(c *Context, op *types.LimitOrderCancelOp) error {
	order, ok, err := state.GetLimitOrder(c.RW, op.Owner, op.OrderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: limit_order_cancel: order %d does not exist for %s", op.OrderID, op.Owner)
	}
	if err := state.ModifyAccount(c.RW, op.Owner, func(a *types.Account) {
		credit(a, order.ForSale.Kind, order.ForSale.Amount)
	}); err != nil {
		return err
	}
	return state.RemoveLimitOrder(c.RW, op.Owner, op.OrderID)
}

func evalConvert(c *Context, op *types.ConvertOp) error {
	owner, err := requireAccount(c, op.Owner)
	if err != nil {
		return err
	}
	if _, ok, err := state.GetConvertRequest(c.RW, op.Owner, op.RequestID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: convert: request %d already exists for %s", op.RequestID, op.Owner)
	}
	if owner.DebtBalance.Amount.Cmp(op.Amount.Amount) < 0 {
		return fmt.Errorf("evaluator: convert: %s has insufficient debt-token balance", op.Owner)
	}
	if err := state.ModifyAccount(c.RW, op.Owner, func(a *types.Account) {
		a.DebtBalance.Amount.Sub(a.DebtBalance.Amount, op.Amount.Amount)
	}); err != nil {
		return err
	}
	return state.PutConvertRequest(c.RW, types.ConvertRequest{
		Owner:          op.Owner,
		RequestID:      op.RequestID,
		Amount:         op.Amount,
		ConversionUnix: c.HeadTime + c.Params.ConversionDelaySeconds,
	})
}

func evalFeedPublish(c *Context, op *types.FeedPublishOp) error {
	w, err := requireWitness(c, op.Publisher)
	if err != nil {
		return err
	}
	_ = w
	return state.RecordFeed(c.RW, op.Publisher, types.PriceFeed{Base: op.QuoteBase, Quote: op.QuoteQuote}, c.HeadTime)
}

func requireWitness(c *Context, owner string) (types.Witness, error) {
	return state.MustGetWitness(c.RW, owner)
}

package state

import (
	"math/big"

	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var limitOrderTable = objectstore.NewTable[types.LimitOrder]("order/obj/")
var orderByExpirationIndex = objectstore.NewIndex("order/byexp/")
var orderBySideIndex = objectstore.NewIndex("order/byside/") // keyed by (sell kind, price) for match scans

func orderPrimaryKey(seller string, orderID uint32) []byte {
	return []byte(types.LimitOrderKey(seller, orderID))
}

// GetLimitOrder looks up a resting order by seller and order id.
func GetLimitOrder(rw objectstore.RW, seller string, orderID uint32) (types.LimitOrder, bool, error) {
	return limitOrderTable.Get(rw, orderPrimaryKey(seller, orderID))
}

// PutLimitOrder creates or replaces a resting order, maintaining the
// by-expiration index.
func PutLimitOrder(rw objectstore.RW, o types.LimitOrder) error {
	id := orderPrimaryKey(o.Seller, o.OrderID)
	if old, ok, err := limitOrderTable.Get(rw, id); err != nil {
		return err
	} else if ok {
		if err := orderByExpirationIndex.Delete(rw, expirationIndexKey(old.ExpirationUnix), id); err != nil {
			return err
		}
	}
	if err := limitOrderTable.Put(rw, id, o); err != nil {
		return err
	}
	return orderByExpirationIndex.Put(rw, expirationIndexKey(o.ExpirationUnix), id)
}

// RemoveLimitOrder deletes a fully filled, cancelled, or expired order.
func RemoveLimitOrder(rw objectstore.RW, seller string, orderID uint32) error {
	id := orderPrimaryKey(seller, orderID)
	o, ok, err := limitOrderTable.Get(rw, id)
	if err != nil || !ok {
		return err
	}
	if err := orderByExpirationIndex.Delete(rw, expirationIndexKey(o.ExpirationUnix), id); err != nil {
		return err
	}
	return limitOrderTable.Remove(rw, id)
}

func expirationIndexKey(expirationUnix int64) []byte {
	u := uint64(expirationUnix)
	return []byte{byte(u >> 56), byte(u >> 48), byte(u >> 40), byte(u >> 32), byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}

// ExpiredOrders returns resting orders whose expiration has passed (section
// 4.4 step 10).
func ExpiredOrders(rw objectstore.RW, headTime int64, limit int) ([]types.LimitOrder, error) {
	var due []types.LimitOrder
	err := orderByExpirationIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		o, ok, err := limitOrderTable.Get(rw, id)
		if err != nil || !ok {
			return true, err
		}
		if o.ExpirationUnix > headTime {
			return false, nil
		}
		due = append(due, o)
		return len(due) < limit, nil
	})
	return due, err
}

// OrdersOnSideOf returns every resting order offering assets of kind
// sellKind, best price first (ForSale.Kind == sellKind), for the
// opposite-side book walk matching performs on limit_order_create.
func OrdersOnSideOf(rw objectstore.RW, sellKind types.AssetKind, fn func(types.LimitOrder) (bool, error)) error {
	var orders []types.LimitOrder
	err := limitOrderTable.Iterate(rw, func(_ []byte, o types.LimitOrder) (bool, error) {
		if o.ForSale.Kind == sellKind {
			orders = append(orders, o)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	sortOrdersByPrice(orders)
	for _, o := range orders {
		cont, err := fn(o)
		if err != nil || !cont {
			return err
		}
	}
	return nil
}

// sortOrdersByPrice orders resting orders best-price-first: the highest
// SellPrice.Base/SellPrice.Quote ratio offers the most for the least, which
// is the best price for a taker buying this side.
func sortOrdersByPrice(orders []types.LimitOrder) {
	for i := 1; i < len(orders); i++ {
		for j := i; j > 0 && priceLess(orders[j], orders[j-1]); j-- {
			orders[j-1], orders[j] = orders[j], orders[j-1]
		}
	}
}

func priceLess(a, b types.LimitOrder) bool {
	// a sorts first when it offers more per unit wanted:
	// a.base/a.quote > b.base/b.quote  <=>  a.base*b.quote > b.base*a.quote
	lhs := new(big.Int).Mul(a.SellPrice.Base.Amount, b.SellPrice.Quote.Amount)
	rhs := new(big.Int).Mul(b.SellPrice.Base.Amount, a.SellPrice.Quote.Amount)
	return lhs.Cmp(rhs) > 0
}

var convertRequestTable = objectstore.NewTable[types.ConvertRequest]("convert/")
var convertByDateIndex = objectstore.NewIndex("convert/bydate/")

// PutConvertRequest creates a pending conversion, indexed by its
// conversion date.
func PutConvertRequest(rw objectstore.RW, c types.ConvertRequest) error {
	id := []byte(types.ConvertRequestKey(c.Owner, c.RequestID))
	if err := convertRequestTable.Put(rw, id, c); err != nil {
		return err
	}
	return convertByDateIndex.Put(rw, expirationIndexKey(c.ConversionUnix), id)
}

// GetConvertRequest looks up a pending conversion request.
func GetConvertRequest(rw objectstore.RW, owner string, requestID uint32) (types.ConvertRequest, bool, error) {
	return convertRequestTable.Get(rw, []byte(types.ConvertRequestKey(owner, requestID)))
}

// RemoveConvertRequest deletes a processed conversion request.
func RemoveConvertRequest(rw objectstore.RW, owner string, requestID uint32) error {
	id := []byte(types.ConvertRequestKey(owner, requestID))
	c, ok, err := convertRequestTable.Get(rw, id)
	if err != nil || !ok {
		return err
	}
	if err := convertByDateIndex.Delete(rw, expirationIndexKey(c.ConversionUnix), id); err != nil {
		return err
	}
	return convertRequestTable.Remove(rw, id)
}

// DueConvertRequests returns conversions whose delay has elapsed.
func DueConvertRequests(rw objectstore.RW, headTime int64, limit int) ([]types.ConvertRequest, error) {
	var due []types.ConvertRequest
	err := convertByDateIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		c, ok, err := convertRequestTable.Get(rw, id)
		if err != nil || !ok {
			return true, err
		}
		if c.ConversionUnix > headTime {
			return false, nil
		}
		due = append(due, c)
		return len(due) < limit, nil
	})
	return due, err
}

var savingsWithdrawalTable = objectstore.NewTable[types.SavingsWithdrawal]("savingswd/")
var savingsByDateIndex = objectstore.NewIndex("savingswd/bydate/")

// PutSavingsWithdrawal creates a pending savings withdrawal.
func PutSavingsWithdrawal(rw objectstore.RW, s types.SavingsWithdrawal) error {
	id := []byte(types.SavingsWithdrawalKey(s.From, s.RequestID))
	if err := savingsWithdrawalTable.Put(rw, id, s); err != nil {
		return err
	}
	return savingsByDateIndex.Put(rw, expirationIndexKey(s.CompleteUnix), id)
}

// RemoveSavingsWithdrawal deletes a completed or cancelled withdrawal.
func RemoveSavingsWithdrawal(rw objectstore.RW, from string, requestID uint32) error {
	id := []byte(types.SavingsWithdrawalKey(from, requestID))
	s, ok, err := savingsWithdrawalTable.Get(rw, id)
	if err != nil || !ok {
		return err
	}
	if err := savingsByDateIndex.Delete(rw, expirationIndexKey(s.CompleteUnix), id); err != nil {
		return err
	}
	return savingsWithdrawalTable.Remove(rw, id)
}

// GetSavingsWithdrawal looks up a pending withdrawal.
func GetSavingsWithdrawal(rw objectstore.RW, from string, requestID uint32) (types.SavingsWithdrawal, bool, error) {
	return savingsWithdrawalTable.Get(rw, []byte(types.SavingsWithdrawalKey(from, requestID)))
}

// DueSavingsWithdrawals returns withdrawals whose delay has elapsed.
func DueSavingsWithdrawals(rw objectstore.RW, headTime int64, limit int) ([]types.SavingsWithdrawal, error) {
	var due []types.SavingsWithdrawal
	err := savingsByDateIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		s, ok, err := savingsWithdrawalTable.Get(rw, id)
		if err != nil || !ok {
			return true, err
		}
		if s.CompleteUnix > headTime {
			return false, nil
		}
		due = append(due, s)
		return len(due) < limit, nil
	})
	return due, err
}


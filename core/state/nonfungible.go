package state

import (
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var nonFungibleFundTable = objectstore.NewTable[types.NonFungibleFund]("nft/")
var nonFungibleOnSaleTable = objectstore.NewTable[types.NonFungibleFundOnSale]("nftsale/")
var nonFungibleOnSaleByExpIndex = objectstore.NewIndex("nftsale/byexp/")

// GetNonFungibleFund looks up an asset unit by current owner and fund id.
func GetNonFungibleFund(rw objectstore.RW, owner string, fundID uint32) (types.NonFungibleFund, bool, error) {
	return nonFungibleFundTable.Get(rw, []byte(types.NonFungibleFundKey(owner, fundID)))
}

// CreateNonFungibleFund mints a new asset unit under owner.
func CreateNonFungibleFund(rw objectstore.RW, f types.NonFungibleFund) error {
	return nonFungibleFundTable.Put(rw, []byte(types.NonFungibleFundKey(f.Owner, f.FundID)), f)
}

// TransferNonFungibleFund moves an asset unit from one owner to another,
// re-keying the table entry since owner is part of the primary key.
func TransferNonFungibleFund(rw objectstore.RW, from, to string, fundID uint32) error {
	f, err := nonFungibleFundTable.MustGet(rw, []byte(types.NonFungibleFundKey(from, fundID)))
	if err != nil {
		return err
	}
	if err := nonFungibleFundTable.Remove(rw, []byte(types.NonFungibleFundKey(from, fundID))); err != nil {
		return err
	}
	f.Owner = to
	return nonFungibleFundTable.Put(rw, []byte(types.NonFungibleFundKey(to, fundID)), f)
}

// ListForSale creates or replaces a sale listing, indexed by its
// expiration so the periodic cleanup pass can pull listings whose TTL has
// elapsed (section 4.4 step 10's "fund-on-sale" expiry).
func ListForSale(rw objectstore.RW, listing types.NonFungibleFundOnSale) error {
	id := []byte(types.NonFungibleFundOnSaleKey(listing.Owner, listing.FundID))
	if old, ok, err := nonFungibleOnSaleTable.Get(rw, id); err != nil {
		return err
	} else if ok {
		if err := nonFungibleOnSaleByExpIndex.Delete(rw, expirationIndexKey(old.ExpirationUnix), id); err != nil {
			return err
		}
	}
	if err := nonFungibleOnSaleTable.Put(rw, id, listing); err != nil {
		return err
	}
	return nonFungibleOnSaleByExpIndex.Put(rw, expirationIndexKey(listing.ExpirationUnix), id)
}

// GetListing looks up a sale listing.
func GetListing(rw objectstore.RW, owner string, fundID uint32) (types.NonFungibleFundOnSale, bool, error) {
	return nonFungibleOnSaleTable.Get(rw, []byte(types.NonFungibleFundOnSaleKey(owner, fundID)))
}

// CancelListing removes a sale listing.
func CancelListing(rw objectstore.RW, owner string, fundID uint32) error {
	id := []byte(types.NonFungibleFundOnSaleKey(owner, fundID))
	listing, ok, err := nonFungibleOnSaleTable.Get(rw, id)
	if err != nil || !ok {
		return err
	}
	if err := nonFungibleOnSaleByExpIndex.Delete(rw, expirationIndexKey(listing.ExpirationUnix), id); err != nil {
		return err
	}
	return nonFungibleOnSaleTable.Remove(rw, id)
}

// ExpiredListings returns sale listings whose TTL has elapsed (section 4.4
// step 10).
func ExpiredListings(rw objectstore.RW, headTime int64, limit int) ([]types.NonFungibleFundOnSale, error) {
	var due []types.NonFungibleFundOnSale
	err := nonFungibleOnSaleByExpIndex.Scan(rw, nil, func(id []byte) (bool, error) {
		l, ok, err := nonFungibleOnSaleTable.Get(rw, id)
		if err != nil || !ok {
			return true, err
		}
		if l.ExpirationUnix > headTime {
			return false, nil
		}
		due = append(due, l)
		return len(due) < limit, nil
	})
	return due, err
}

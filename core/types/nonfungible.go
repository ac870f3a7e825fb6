package types

// NonFungibleFund is a single non-fungible asset unit owned by exactly one
// account (section 3; supplemented from original_source's
// nonfungible_fund_object.hpp).
type NonFungibleFund struct {
	Owner    string
	FundID   uint32
	JSONMeta string
	CreatedUnix int64
}

// NonFungibleFundKey forms the unique (owner, fund id) primary key. Transfer
// reassigns Owner and the caller must re-key the table entry accordingly.
func NonFungibleFundKey(owner string, fundID uint32) string {
	return owner + "/" + itoa(fundID)
}

// NonFungibleFundOnSale is a listing offering a NonFungibleFund for a fixed
// price (supplemented from original_source's
// nonfungible_fund_on_sale_object.hpp).
type NonFungibleFundOnSale struct {
	Owner      string
	FundID     uint32
	Price      Asset
	ListedUnix int64
	ExpirationUnix int64
}

// NonFungibleFundOnSaleKey forms the unique (owner, fund id) primary key.
func NonFungibleFundOnSaleKey(owner string, fundID uint32) string {
	return owner + "/" + itoa(fundID)
}

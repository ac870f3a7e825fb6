package types

// Crowdfunding is a fixed-target, fixed-deadline fundraise (section 3;
// supplemented from original_source's crowdfunding_object.hpp, which this
// spec's distillation names but does not fully enumerate).
type Crowdfunding struct {
	Originator     string
	FundID         uint32
	Target         Asset
	Raised         Asset
	ExpirationUnix int64
	JSONMeta       string
	Finished       bool
	Successful     bool
}

// CrowdfundingKey forms the unique (originator, fund id) primary key.
func CrowdfundingKey(originator string, fundID uint32) string {
	return originator + "/" + itoa(fundID)
}

// CrowdfundingInvest is one investor's pledge toward a Crowdfunding.
type CrowdfundingInvest struct {
	Originator string
	FundID     uint32
	Investor   string
	Amount     Asset
	InvestedUnix int64
}

// CrowdfundingInvestKey forms the unique (originator, fund id, investor)
// primary key.
func CrowdfundingInvestKey(originator string, fundID uint32, investor string) string {
	return originator + "/" + itoa(fundID) + "/" + investor
}

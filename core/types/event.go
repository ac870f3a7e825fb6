package types

// EventType tags the virtual operations of section 6: observer-only events
// emitted during block application, never valid inside a submitted
// transaction.
type EventType uint16

const (
	EventFillConvertRequest EventType = iota
	EventAuthorReward
	EventCurationReward
	EventCommentReward
	EventLiquidityReward
	EventInterest
	EventFillVestingWithdraw
	EventFillOrder
	EventShutdownWitness
	EventFillTransferFromSavings
	EventHardfork
	EventCommentPayoutUpdate
	EventReturnVestingDelegation
	EventCommentBenefactorReward
	EventProducerReward
	EventCrowdfundingFinished
	EventCrowdfundingRefunded
	EventNonFungibleFundSold
	EventEscrowReleased
	EventEscrowDisputed
	EventContractLog
)

// Event is a single virtual operation recorded for observers. Fields is a
// JSON-encoded payload whose shape depends on Type; keeping it opaque here
// mirrors the way the host surface's contract.emit serializes arbitrary
// tables (section 4.6) without requiring a Go type per event kind.
type Event struct {
	Type        EventType
	BlockNum    uint64
	TxIndex     int // -1 for events not tied to a specific transaction
	OpIndex     int
	Fields      string // JSON
}

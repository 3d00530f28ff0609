package audit

import (
	"time"

	id "custodia/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// every movement of custody funds and every governance decision.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics:
	// pauses, emergency flows, authorization failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	// These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture a single state transition.
// Exactly one event per transition, in the order the transition's
// preconditions were satisfied. Keep it transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Actor is the caller whose operation produced the transition.
	Actor id.AccountID
	// Subject is the account the transition applied to (holder credited,
	// recipient paid, vault funded), when different from the actor.
	Subject id.AccountID
	Action  string
	// Amount is the funding-asset quantity moved or committed, zero for
	// non-monetary transitions such as oracle set changes.
	Amount id.Amount
	// Reference carries the domain identifier the event is about, e.g.
	// "project/3", "allocation/12", "escrow/3/tx/1".
	Reference string
	Reason    string
	RequestID string
}

// AuditEvent names every observable transition in the custody state machine.
type AuditEvent string

const (
	// Registry events
	EventProjectCreated             AuditEvent = "project_created"
	EventProjectDeactivated         AuditEvent = "project_deactivated"
	EventOracleSetChanged           AuditEvent = "oracle_set_changed"
	EventFundingTokenChanged        AuditEvent = "funding_token_changed"
	EventTimelockActionQueued       AuditEvent = "timelock_action_queued"
	EventEmergencyWithdrawProposed  AuditEvent = "emergency_withdrawal_proposed"
	EventEmergencyWithdrawSigned    AuditEvent = "emergency_withdrawal_signed"
	EventEmergencyWithdrawExecuted  AuditEvent = "emergency_withdrawal_executed"
	EventEmergencyPauseTriggered    AuditEvent = "emergency_pause_triggered"
	EventSystemUnpaused             AuditEvent = "system_unpaused"

	// Ledger events
	EventMintRecorded AuditEvent = "mint_recorded"
	EventBurnRecorded AuditEvent = "burn_recorded"

	// Treasury events
	EventDepositRecorded    AuditEvent = "deposit_recorded"
	EventWithdrawalRecorded AuditEvent = "withdrawal_recorded"
	EventAllocationProposed AuditEvent = "allocation_proposed"
	EventAllocationSigned   AuditEvent = "allocation_signed"
	EventAllocationExecuted AuditEvent = "allocation_executed"

	// Escrow events
	EventFiatTransferRequested AuditEvent = "fiat_transfer_requested"
	EventFiatTransferConfirmed AuditEvent = "fiat_transfer_oracle_confirmed"
	EventConsensusReached      AuditEvent = "fiat_transfer_consensus_reached"
	EventTokensReleased        AuditEvent = "tokens_released"
	EventFundsReturned         AuditEvent = "funds_returned"
)

// eventCategories maps each audit event to its category.
// Compliance: fund movements and governance outcomes.
// Security: pause and emergency paths.
// Operations: intermediate lifecycle steps.
var eventCategories = map[AuditEvent]EventCategory{
	EventProjectCreated:            CategoryCompliance,
	EventProjectDeactivated:        CategoryCompliance,
	EventFundingTokenChanged:       CategoryCompliance,
	EventMintRecorded:              CategoryCompliance,
	EventBurnRecorded:              CategoryCompliance,
	EventDepositRecorded:           CategoryCompliance,
	EventWithdrawalRecorded:        CategoryCompliance,
	EventAllocationExecuted:        CategoryCompliance,
	EventConsensusReached:          CategoryCompliance,
	EventTokensReleased:            CategoryCompliance,
	EventFundsReturned:             CategoryCompliance,
	EventEmergencyWithdrawExecuted: CategoryCompliance,

	EventOracleSetChanged:          CategorySecurity,
	EventEmergencyPauseTriggered:   CategorySecurity,
	EventSystemUnpaused:            CategorySecurity,
	EventEmergencyWithdrawProposed: CategorySecurity,
	EventEmergencyWithdrawSigned:   CategorySecurity,
	EventTimelockActionQueued:      CategorySecurity,

	EventAllocationProposed:    CategoryOperations,
	EventAllocationSigned:      CategoryOperations,
	EventFiatTransferRequested: CategoryOperations,
	EventFiatTransferConfirmed: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

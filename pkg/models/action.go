package models

// ActionKind identifies a player's submitted intent for a turn.
type ActionKind string

// Actions a player may take during the action phase.
const (
	ActionIncome      ActionKind = "income"
	ActionForeignAid  ActionKind = "foreign_aid"
	ActionTax         ActionKind = "tax"
	ActionSteal       ActionKind = "steal"
	ActionAssassinate ActionKind = "assassinate"
	ActionCoup        ActionKind = "coup"
	ActionSwap        ActionKind = "swap_influence"
)

// AssassinateCost is paid even when the assassination is blocked.
const AssassinateCost = 3

// CoupCost is the coin price of a coup.
const CoupCost = 7

// ActionSpec describes the static rules of a single action kind.
// Deep per-action class hierarchies in other engines collapse to this table;
// the resolver switches on the kind for effect application.
type ActionSpec struct {
	// Cost is the coin price checked before the action resolves.
	Cost int

	// ClaimedRole is the role the actor asserts, or "" for unrestricted
	// actions. Only claimed actions can be challenged.
	ClaimedRole Card

	// BlockableBy lists the roles a blocker may claim against this action.
	// Empty means the action cannot be blocked.
	BlockableBy []Card

	// Targeted marks actions that require a target player.
	Targeted bool
}

// ActionSpecs is the rule table for every action kind.
var ActionSpecs = map[ActionKind]ActionSpec{
	ActionIncome:      {},
	ActionForeignAid:  {BlockableBy: []Card{CardDuke}},
	ActionTax:         {ClaimedRole: CardDuke},
	ActionSteal:       {ClaimedRole: CardCaptain, BlockableBy: []Card{CardCaptain, CardAmbassador}, Targeted: true},
	ActionAssassinate: {Cost: AssassinateCost, ClaimedRole: CardAssassin, BlockableBy: []Card{CardContessa}, Targeted: true},
	ActionCoup:        {Cost: CoupCost, Targeted: true},
	ActionSwap:        {ClaimedRole: CardAmbassador},
}

// ValidAction reports whether kind names a known action.
func ValidAction(kind ActionKind) bool {
	_, ok := ActionSpecs[kind]
	return ok
}

// CanBlockWith reports whether role is an admissible blocking claim for kind.
func CanBlockWith(kind ActionKind, role Card) bool {
	spec, ok := ActionSpecs[kind]
	if !ok {
		return false
	}
	for _, r := range spec.BlockableBy {
		if r == role {
			return true
		}
	}
	return false
}

// UpgradeFlags carries action-kind-specific options submitted with a
// pending action. Only honoured when the session has upgrades enabled.
type UpgradeFlags struct {
	// AssassinationPriority names the card the target must lose first,
	// if it is present in the target's hand.
	AssassinationPriority Card `json:"assassination_priority,omitempty"`
}

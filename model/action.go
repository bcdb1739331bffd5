package model

// ActionKind enumerates the movements an amoebot may request in a round.
type ActionKind int

const (
	ActionNone ActionKind = iota
	// ActionExpand grows a contracted amoebot into an adjacent node.
	ActionExpand
	// ActionContractHead shrinks an expanded amoebot onto its head node.
	ActionContractHead
	// ActionContractTail shrinks an expanded amoebot onto its tail node.
	ActionContractTail
	// ActionPush expands a contracted amoebot into a node held by an
	// expanded neighbour, which hands the node over by contracting.
	ActionPush
	// ActionPull contracts an expanded amoebot onto its head while a
	// contracted neighbour of its tail expands into the vacated node.
	ActionPull
)

var actionNames = map[ActionKind]string{
	ActionNone:         "none",
	ActionExpand:       "expand",
	ActionContractHead: "contract_head",
	ActionContractTail: "contract_tail",
	ActionPush:         "push",
	ActionPull:         "pull",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return "unknown"
}

// Action is a movement request in global terms. Direction is only
// meaningful for expand, push and pull.
type Action struct {
	Kind      ActionKind
	Direction Direction
}

// IsMovement reports whether the action changes the amoebot's shape.
func (a Action) IsMovement() bool { return a.Kind != ActionNone }

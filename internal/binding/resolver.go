package binding

import (
	"fmt"

	"wsbind/pkg/contracts/domain"
)

// ConflictState is the snapshot of current state the resolver decides over.
// The engine assembles it inside the per-workshop critical section so the
// decision and the subsequent binding write are atomic with respect to other
// operations on the same workshop code.
type ConflictState struct {
	// ActiveBinding is the system-wide Active binding for the workshop
	// code, regardless of business; nil when there is none.
	ActiveBinding *domain.WorkshopBinding
	// ActiveBindingCount is the business's current number of Active
	// bindings.
	ActiveBindingCount int
	// MaxWorkshopBindings is the business's binding limit.
	MaxWorkshopBindings int
}

// Decision is the resolver's verdict
type Decision struct {
	Allowed bool
	Reason  string
}

// Allowed is the positive decision
var Allowed = Decision{Allowed: true}

// Denied creates a negative decision with a reason
func Denied(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// CheckBindAllowed decides whether the workshop may bind to the business
// right now. Pure function over the given state; rules are evaluated in
// order and the first applicable rule wins:
//
//  1. A workshop with an Active binding to another business cannot bind
//     again. An Active binding to the requesting business is not a
//     conflict; that bind is a re-bind and replaces the existing row.
//  2. A business at its workshop limit cannot accept another binding.
//  3. Otherwise the bind is allowed.
func CheckBindAllowed(workshopCode, businessLicense string, state ConflictState) Decision {
	if state.ActiveBinding != nil && state.ActiveBinding.BusinessLicense != businessLicense {
		return Denied(fmt.Sprintf("workshop %s already bound to business %s",
			workshopCode, state.ActiveBinding.BusinessLicense))
	}
	if state.ActiveBindingCount >= state.MaxWorkshopBindings {
		return Denied(fmt.Sprintf("business %s workshop limit reached (%d/%d)",
			businessLicense, state.ActiveBindingCount, state.MaxWorkshopBindings))
	}
	return Allowed
}

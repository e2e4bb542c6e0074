package order

import (
	"agromarket/internal/apperr"
	"agromarket/internal/models"
)

// Actor identifies who is asking for a mutation.
type Actor struct {
	ID   int64
	Role string
}

// transitions is the full order state machine. Terminal states carry no
// outgoing edges; anything not listed is an invalid transition.
var transitions = map[string][]string{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusDelivered: {models.OrderStatusCompleted},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// authorizeTransition applies the role/ownership gate for a transition the
// state machine already accepts. Farmers act on orders containing their
// products, retailers on their own orders, admins on everything except
// where the edge is admin-only.
func authorizeTransition(actor Actor, o *models.Order, farmerIDs []int64, to string) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}

	switch {
	case o.Status == models.OrderStatusPending && to == models.OrderStatusConfirmed,
		o.Status == models.OrderStatusConfirmed && to == models.OrderStatusDelivered:
		if actor.Role == models.RoleFarmer && containsID(farmerIDs, actor.ID) {
			return nil
		}
	case o.Status == models.OrderStatusDelivered && to == models.OrderStatusCompleted,
		o.Status == models.OrderStatusPending && to == models.OrderStatusCancelled:
		if actor.Role == models.RoleRetailer && o.RetailerID == actor.ID {
			return nil
		}
	case o.Status == models.OrderStatusConfirmed && to == models.OrderStatusCancelled:
		// admin only, handled above
	}

	return apperr.New(apperr.Authorization, "not allowed to move order %d from %s to %s",
		o.ID, o.Status, to)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

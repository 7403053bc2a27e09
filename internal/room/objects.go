package room

import (
	"github.com/rx3lixir/cofi_rooms/internal/theme"
)

// ResolveObjects derives the per-object view from the online assignments.
// An object shared by several users shows the state of whoever toggled last;
// an object nobody has toggled is off
func ResolveObjects(catalog []theme.Object, users []*Assignment, me string) []ObjectState {
	states := make([]ObjectState, len(catalog))

	for i, obj := range catalog {
		state := ObjectState{ID: obj.ID, Name: obj.Name}

		var latest *Assignment
		for _, u := range users {
			if u.ObjectID != obj.ID {
				continue
			}
			state.Holders++
			state.IsAssigned = true
			if me != "" && u.UserID == me {
				state.IsMe = true
			}
			if u.ToggledAt == nil {
				continue
			}
			if latest == nil || u.ToggledAt.After(*latest.ToggledAt) {
				latest = u
			}
		}

		if latest != nil {
			state.IsActive = latest.IsActive
		}
		states[i] = state
	}

	return states
}

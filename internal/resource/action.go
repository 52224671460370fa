package resource

import (
	"fmt"

	"docsplatform/internal/access"
)

// Action is a routed controller operation.
type Action int

const (
	ActionList Action = iota + 1
	ActionRetrieve
	ActionCreate
	ActionUpdate
	ActionPartialUpdate
	ActionDestroy
	ActionSuperproject
)

var actionNames = map[Action]string{
	ActionList:          "list",
	ActionRetrieve:      "retrieve",
	ActionCreate:        "create",
	ActionUpdate:        "update",
	ActionPartialUpdate: "partial_update",
	ActionDestroy:       "destroy",
	ActionSuperproject:  "superproject",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ReadOnly reports whether the action never mutates state.
func (a Action) ReadOnly() bool {
	switch a {
	case ActionList, ActionRetrieve, ActionSuperproject:
		return true
	default:
		return false
	}
}

// Detail reports whether the action targets a single object.
func (a Action) Detail() bool {
	return a != ActionList && a != ActionCreate
}

// Verb maps the action onto the coarse policy verb.
func (a Action) Verb() access.Verb {
	if a.ReadOnly() {
		return access.Read
	}
	return access.Write
}

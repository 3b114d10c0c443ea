package domain

import "net/http"

// Operation names a child-collection operation. The same names are used on
// every transport.
type Operation string

const (
	OpGet     Operation = "get"
	OpGetByID Operation = "get-by-id"

	OpSave     Operation = "save"
	OpSaveMany Operation = "save-many"

	OpUpdate            Operation = "update"
	OpUpdateByID        Operation = "update-by-id"
	OpUpdateByName      Operation = "update-by-name"
	OpUpdateByKey       Operation = "update-by-key"
	OpUpdateByType      Operation = "update-by-type"
	OpUpdateByRelatedID Operation = "update-by-related-id"
	OpUpdateMany        Operation = "update-many"

	OpDelete            Operation = "delete"
	OpDeleteByID        Operation = "delete-by-id"
	OpDeleteByName      Operation = "delete-by-name"
	OpDeleteByKey       Operation = "delete-by-key"
	OpDeleteByType      Operation = "delete-by-type"
	OpDeleteByRelatedID Operation = "delete-by-related-id"
	OpDeleteMany        Operation = "delete-many"
)

// AllOperations returns every known operation.
func AllOperations() []Operation {
	return []Operation{
		OpGet, OpGetByID,
		OpSave, OpSaveMany,
		OpUpdate, OpUpdateByID, OpUpdateByName, OpUpdateByKey, OpUpdateByType, OpUpdateByRelatedID, OpUpdateMany,
		OpDelete, OpDeleteByID, OpDeleteByName, OpDeleteByKey, OpDeleteByType, OpDeleteByRelatedID, OpDeleteMany,
	}
}

func (o Operation) String() string { return string(o) }

func (o Operation) Valid() bool {
	for _, op := range AllOperations() {
		if op == o {
			return true
		}
	}
	return false
}

// Status is the success code reported for the operation: 201 for saves,
// 200 for everything else.
func (o Operation) Status() int {
	switch o {
	case OpSave, OpSaveMany:
		return http.StatusCreated
	default:
		return http.StatusOK
	}
}

// Mutates reports whether the operation writes the parent aggregate.
func (o Operation) Mutates() bool {
	return o != OpGet && o != OpGetByID
}

// EventType returns the domain event published after a successful mutation.
func (o Operation) EventType() EventType {
	switch o {
	case OpSave, OpSaveMany:
		return EventChildSaved
	case OpDelete, OpDeleteByID, OpDeleteByName, OpDeleteByKey, OpDeleteByType, OpDeleteByRelatedID, OpDeleteMany:
		return EventChildDeleted
	default:
		return EventChildUpdated
	}
}

package app

// Operation tracks one CLI invocation. Operations start read-only; a
// command that changes the ledger marks its operation mutating, and only
// mutating operations archive a ledger snapshot on Close.
type Operation struct {
	ID       string
	Name     string
	Mutating bool
	Status   string // "success" or "error"
}

// NewOperation creates a read-only operation.
func NewOperation(id, name string) *Operation {
	return &Operation{
		ID:     id,
		Name:   name,
		Status: "success",
	}
}

// MarkMutating records that the operation may have changed the ledger.
func (op *Operation) MarkMutating() { op.Mutating = true }

// Fail marks the operation as failed.
func (op *Operation) Fail() { op.Status = "error" }

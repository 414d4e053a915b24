package model

// StageStatus is the outcome tag of a stage execution. The wire schema
// carries it as free text; the model treats it as a closed set so that
// status handling stays exhaustive. Encoded as the lowercase string name.
type StageStatus string

const (
	StatusPending  StageStatus = "pending"
	StatusRunning  StageStatus = "running"
	StatusSuccess  StageStatus = "success"
	StatusFailure  StageStatus = "failure"
	StatusRetrying StageStatus = "retrying"
)

// Valid reports whether s is one of the known statuses.
func (s StageStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailure, StatusRetrying:
		return true
	}
	return false
}

// Terminal reports whether no further execution of the stage is expected.
// Success and permanent failure are terminal; retrying is not.
func (s StageStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

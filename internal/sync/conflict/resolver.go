// Package conflict decides which side of a concurrently modified record
// survives reconciliation. Resolution is whole-record last-write-wins on the
// modification timestamp, with an optional status-authority override.
package conflict

import "time"

// Winner identifies the surviving side of a conflict.
type Winner int

const (
	// WinnerNoOp means both sides already agree; nothing to apply.
	WinnerNoOp Winner = iota
	// WinnerLocal means the local copy survives and will be pushed.
	WinnerLocal
	// WinnerRemote means the remote copy survives and is applied locally.
	WinnerRemote
)

// String returns the winner name for logging.
func (w Winner) String() string {
	switch w {
	case WinnerLocal:
		return "local"
	case WinnerRemote:
		return "remote"
	default:
		return "noop"
	}
}

// Version is the comparable view of one side of a record: its modification
// timestamp and, for resources that carry one, an authority-controlled
// status field. A zero UpdatedAt means that side does not have the record.
type Version struct {
	UpdatedAt time.Time
	Status    string
}

// Resolver picks winners for one resource. statusAuthority enables the
// equal-timestamp status override; it must only be set for resources whose
// status field is corrected administratively on the remote side, where the
// correction may not bump the timestamp.
type Resolver struct {
	statusAuthority bool
}

// NewResolver creates a Resolver. Pass statusAuthority=true only for
// resources carrying an authority-controlled status field.
func NewResolver(statusAuthority bool) *Resolver {
	return &Resolver{statusAuthority: statusAuthority}
}

// Resolve compares local and remote versions of the same record and returns
// the surviving side.
//
// A locally absent record (zero timestamp) always loses to the remote copy.
// Otherwise the later timestamp wins. On equal timestamps a differing status
// yields WinnerRemote when the override is enabled, else WinnerNoOp.
func (r *Resolver) Resolve(local, remote Version) Winner {
	if local.UpdatedAt.IsZero() {
		return WinnerRemote
	}
	if remote.UpdatedAt.After(local.UpdatedAt) {
		return WinnerRemote
	}
	if local.UpdatedAt.After(remote.UpdatedAt) {
		return WinnerLocal
	}
	if r.statusAuthority && local.Status != remote.Status {
		return WinnerRemote
	}
	return WinnerNoOp
}

package sync

import "time"

// Action is the outcome of resolving a local version of an entity against
// the remote version with the same id.
type Action int

const (
	// ActionPull writes the remote version into the cache, either because
	// nothing is cached yet or because the remote revision is strictly
	// newer.
	ActionPull Action = iota

	// ActionNoOp means both sides carry the same revision. Equal
	// timestamps are never treated as a conflict; doing otherwise would
	// oscillate when the server keeps returning the same second-resolution
	// timestamp. For entries, a NoOp still requires walking the embedded
	// annotations: annotation edits don't bump the parent's updated_at.
	ActionNoOp

	// ActionPush sends the strictly newer local version to the server.
	// The server's response must then be pulled back into the cache,
	// because it canonicalizes fields the push payload cannot set
	// directly (tag slugs and ids, for one).
	ActionPush
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionPull:
		return "pull"
	case ActionNoOp:
		return "noop"
	case ActionPush:
		return "push"
	default:
		return "unknown"
	}
}

// Resolve decides how to reconcile a cached revision against the remote
// revision of the same entity. A nil local means the entity has never been
// seen locally. The decision is a pure function of the two updated_at
// timestamps: last write wins, wholesale.
func Resolve(local *time.Time, remote time.Time) Action {
	if local == nil {
		return ActionPull
	}
	switch local.Compare(remote) {
	case -1:
		return ActionPull
	case 0:
		return ActionNoOp
	default:
		return ActionPush
	}
}

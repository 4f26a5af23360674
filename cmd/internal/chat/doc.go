// Package chat holds the parley domain model and service layer: users,
// channels (single and group), invitations, messages, and the access rules
// that govern them.
//
// Domain types are immutable values; state transitions return new snapshots
// and the store layer translates snapshots into row changes. All service
// operations run inside one atomic unit of work (Manager.Run) so that state
// changes commit or discard together.
package chat

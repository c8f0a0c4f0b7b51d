// Package coord implements the signaling coordinator: it pairs a receiver
// with the offerer of a transfer and relays opaque negotiation messages
// between their connections.
//
// An invocation flows through three stages:
//
//	Event --Classify--> Command --Coordinator--> error --ResponseFor--> Response
//
// The coordinator keeps no state between invocations. The offer directory
// (package offer) and the delivery channel (package delivery) are the only
// collaborators, and both are injected.
//
// Per transfer id the protocol moves NoOffer -> Offered -> Paired, but only
// the Offered state is ever recorded: a directory entry that expires on its
// own. Disconnects are not tracked. A peer that left is discovered lazily
// when a delivery to it reports delivery.ErrGone.
package coord

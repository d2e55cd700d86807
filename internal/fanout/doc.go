// Package fanout broadcasts gateway events to dynamically registered
// listeners.
//
// A Registry owns a set of listeners, each subscribed with an event type
// mask. Publish delivers an event to every listener whose mask matches.
// Delivery is non-blocking: a listener that cannot keep up loses events (the
// drop is counted) rather than stalling the shard runtime or its sibling
// listeners. A consumer that cannot afford drops subscribes with a buffer
// sized for its worst backlog (SubscribeBuffered).
//
// Closing a listener removes it from the registry and closes its channel, so
// consumers can simply range over Events().
package fanout

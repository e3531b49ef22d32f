// Package broadcast fans gaze samples out to every registered subscriber.
//
// A Registry holds the subscriber handles. A Broadcaster serializes each
// sample once and hands it to a per-entry outbox whose single sender
// goroutine keeps delivery ordered for that entry. A slow or failing
// subscriber never blocks the publisher or the other subscribers.
package broadcast

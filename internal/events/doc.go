// Package events is a lightweight in-process pub/sub broker used to
// broadcast control-loop state transitions and store lifecycle events to
// anything that wants to observe them. Non-blocking: a slow subscriber
// drops events rather than stalling the publisher.
package events

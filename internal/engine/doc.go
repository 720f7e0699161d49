// Package engine runs the post dispatch loop.
//
// An Engine periodically scans the store for scheduled posts whose time has
// arrived and publishes each one to every platform it targets. The outcome
// is all-or-nothing per post: if any platform rejects, the post is marked
// failed (platforms that already accepted are not rolled back). Publication
// is attempted once; a failed post is terminal until a user reschedules it.
//
// The engine is an ordinary struct with its own lifecycle, so several
// independent engines can exist (tests run many). All durable state lives in
// the store; between ticks the engine remembers nothing about posts.
package engine

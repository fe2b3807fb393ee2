// Package audit records membership operations as structured events.
//
// # Components
//
//   - [Event] names the operation ([Kind]), its [Outcome] and the [Subject]
//     account, plus the user and role names a membership change touched.
//   - [Sink] consumers: [ChannelSink], [JSONLinesSink] and [SinkFunc], combined
//     with [Filter] and [Fanout].
//   - [Dispatcher] relays events to a sink from a single goroutine, either
//     dropping or waiting when its queue is full.
//
// Which events are emitted, and when, is decided by the membership Engine.
// This package must not import goMembership, and events must not carry
// passwords, answers, salts or hashes.
package audit

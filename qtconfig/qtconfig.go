// Package qtconfig provides the shared functional-options shape used
// across this module's constructors (channel.Option, reactor.Option,
// discovery.Option). There is no config-file format in the corpus to
// ground one on — the teacher configures everything through constructor
// parameters and builder calls like Server.Use(middleware) — so
// configuration here stays a thin generic helper over that same pattern
// rather than a parsed-file layer.
package qtconfig

// Option mutates a *T at construction time. Each package typically defines
// its own named alias (type Option = qtconfig.Option[Reactor]) so its
// exported With* functions read naturally to callers.
type Option[T any] func(*T)

// Apply runs every option against target in order, the same sequential
// application every With* constructor in this module performs by hand.
func Apply[T any](target *T, opts []Option[T]) {
	for _, opt := range opts {
		opt(target)
	}
}

// Package runner executes delegate turns as cancelable background jobs.
//
// One launch is one generation: the runner bumps the record's generation
// counter and installs a fresh cancellation handle under the registry lock,
// then drains the delegate's stream and polls the message store until the
// assistant reply is durably persisted. Completions re-check the generation
// before writing, so an execution superseded by a continue settles nothing.
package runner

// Package core defines the shared data model and service contracts of the
// delegation orchestrator: the delegation record and its read-only snapshot,
// candidate selection inputs, conversation messages, and the interfaces for
// the registry, the workflow directory, agent profiles, message persistence
// and the delegate turn endpoint.
//
// The package contains no business logic beyond defensive copying; the
// behavior lives in the registry, resolver, runner and controller packages
// which all depend on core and never on each other's internals.
package core

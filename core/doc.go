// Package core contains the credential-lifecycle domain: connection and
// destination entities, the lifecycle service, and the contracts the cipher,
// identity-provider client, and row stores plug into. Adapters depend on this
// package; core never depends on a provider- or transport-specific adapter.
package core

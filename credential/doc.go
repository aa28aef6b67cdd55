// Package credential persists the opaque session credential blob used to
// resume the chat transport without human re-pairing.
//
// The blob is written once per successful authentication, read once at
// supervisor start-up, and deleted only when the transport reports an
// explicit logout. It is never deleted on a transient drop.
//
// The blob is encrypted at rest with AES-256-GCM under a key derived from
// a caller-supplied passphrase via PBKDF2, and written atomically through
// a temporary file so a crash cannot leave a half-written credential.
package credential

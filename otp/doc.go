// Package otp implements the one-time verification code store used for
// phone-number-bound signup and login confirmation.
//
// Codes are fixed-width numeric strings drawn from a uniform distribution.
// Each recipient has at most one outstanding session: issuing a new code
// silently replaces the prior one. A session is consumed on the first
// successful verification, destroyed after three failed attempts, and
// garbage-collected by a periodic sweep once its expiry window (10 minutes
// by default) has passed.
//
// Example:
//
//	store := otp.NewStore(otp.DefaultConfig())
//	code, err := store.Issue("+15550100", "Alice")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result := store.Verify("+15550100", code)
//	if result.Valid {
//	    // recipient confirmed
//	}
package otp

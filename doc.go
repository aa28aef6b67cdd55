// Package courier implements connection-resilient notification delivery
// over an unreliable, session-based chat transport.
//
// Courier owns the hard part of sending one-time verification codes,
// invoices and order alerts through a chat channel: maintaining a
// logged-in transport session, recovering from drops with jittered
// exponential backoff, surfacing pairing codes when human
// re-authentication is required, and guaranteeing that every notification
// is either delivered or explicitly reported as failed. The underlying
// chat protocol is an opaque external dependency behind the transport
// package.
//
// Example:
//
//	options := courier.NewOptions()
//	options.DataDir = "/var/lib/courier"
//	options.CredentialPassphrase = []byte(os.Getenv("COURIER_PASSPHRASE"))
//
//	c, err := courier.New(chatTransport, options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := c.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Stop()
//
//	// The code is always returned, even when the chat channel is down:
//	// delivery is best-effort, verification never blocks on transport.
//	code, outcome, err := c.RequestOTP("+15550100", "Alice")
//
//	result := c.VerifyOTP("+15550100", submittedCode)
//	if result.Valid {
//	    // phone number confirmed
//	}
//
//	outcome = c.SendDocument("+15550100", pdfBytes, "invoice-1042.pdf", "Your order invoice")
package courier

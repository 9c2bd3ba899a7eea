// Package recipient implements the recipient (subscriber) service.
//
// Recipients are keyed by lowercased email. Subscribe is an idempotent
// upsert that never blanks stored name fields with empty input. Token
// based unsubscribes verify the per-dispatch token before flipping the
// subscription flag, so links work without a login.
//
// The service depends on the Repository interface defined in
// repository.go and never imports net/http or database/sql directly.
package recipient

// Package auth signs users in with a password or a Google account and hands
// out access tokens from pkg/jwt.
//
// Password accounts are created with Register and verified with Login.
// Refresh reissues a token for a known email. The Google flow is two calls:
// OAuth.AuthURL builds the consent redirect with a signed single-use state,
// and OAuth.Callback exchanges the code, links or creates the account and
// returns a Session. RequireUser guards routes and puts the loaded record on
// the request context.
package auth

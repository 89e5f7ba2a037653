// Package api is the HTTP client for the remote operations API.
//
// The client attaches the session's bearer token to every request. When a
// request comes back 401 it refreshes the token pair once, shared by every
// request that failed at the same time, and retries the request with the new
// access token. When there is no refresh token, or the refresh itself fails,
// the client ends the session through its Tokens and returns the error.
//
// Non-2xx responses become *RequestError carrying the status, the "detail"
// message and the "custom_code" of the response body.
package api

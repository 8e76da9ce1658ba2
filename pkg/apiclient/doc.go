/*
Package apiclient is the single path every call to the portal backend takes.

It owns the request/response contract shared by all features:

  - the bearer token is injected from the session store (the refresh token
    for refresh-flagged calls, otherwise the access token);
  - the CSRF cookie set by the backend is echoed back as X-CSRF-TOKEN;
  - a "message" in a successful response is shown as an info notice;
  - failures are classified into an *Error, one error notice is shown per
    human readable message, and a 401 triggers the cascading logout hook.

Callers still receive the error after those side effects, so they can branch
on failure without showing the message a second time:

	var out struct{ User session.User `json:"user"` }
	if _, err := client.Get(ctx, "/api/auth/me", &out, apiclient.RequireAuth()); err != nil {
		return err // already shown to the user
	}

Network failures carry no payload and are returned as KindNetwork errors
without any notice.
*/
package apiclient

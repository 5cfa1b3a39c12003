/*
Package authsdk provides a client SDK for the session authentication service.

# Overview

The service keeps its session in cookies: an HttpOnly access token, an
HttpOnly refresh token scoped to /api/auth, and a script-readable CSRF token.
Client holds a cookie jar so those cookies round-trip the way they would in a
browser, and it copies the csrf cookie into the X-CSRF-Token header on every
state-changing request.

	client, err := authsdk.NewClient("https://auth.example.com")
	if err != nil {
		return err
	}

	// Create an account; a verification email is sent.
	_, err = client.Register(ctx, authsdk.RegisterRequest{
		Email:     "ada@example.com",
		Password:  "Correct$Horse9battery",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})

	// After following the emailed link:
	_, err = client.VerifyEmail(ctx, token)

	// Open a session. Cookies are stored in the client's jar.
	session, err := client.Login(ctx, "ada@example.com", "Correct$Horse9battery")

	me, err := client.Me(ctx)

	// Rotate the refresh token before the access token lapses.
	session, err = client.Refresh(ctx)

	_, err = client.Logout(ctx)

# Error Handling

Every non-2xx response is returned as an *APIError carrying the HTTP status,
the machine-readable code and the message from the server. Validation
failures also carry the offending fields:

	_, err := client.Register(ctx, req)
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeValidation {
		for _, f := range apiErr.Fields {
			fmt.Println(f.Path, f.Message)
		}
	}

IsCode is a shorthand for the common case:

	if authsdk.IsCode(err, authsdk.ErrorCodeAccountLocked) {
		// back off
	}

# Thread Safety

Client is safe for concurrent use, but all goroutines share one cookie jar
and therefore one session. Use one Client per account.
*/
package authsdk

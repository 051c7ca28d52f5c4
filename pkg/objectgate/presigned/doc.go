// Package presigned issues and checks HMAC-signed upload URLs for blob
// stores that have no native URL signing (memory and filesystem).
//
// Signed URLs have the form
//
//	<base>/upload/<bucket>/<object name>?signature=<hmac>&expires=<unix>
//
// and are accepted by the PUT handler mounted with Handlers.Mount.
//
//	signer := presigned.New(
//	    presigned.WithSecretKey(secret),
//	    presigned.WithBaseURL("https://api.example.com"),
//	)
//	u, err := signer.SignObjectURL(http.MethodPut, "media", "public/abc.mp4", 15*time.Minute)
package presigned

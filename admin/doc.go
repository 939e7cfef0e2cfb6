// Package admin serves the operational HTTP surface of a coordinator:
// per-key breaker status, reset and reset-all, the aggregate health
// summary, and recent execution records.
//
// The API is mounted by the embedding server, typically under a prefix:
//
//	api, err := admin.NewAPI(admin.APIConfig{Controls: coord, Recent: recent})
//	if err != nil {
//		log.Fatal(err)
//	}
//	mux.Handle("/admin/", http.StripPrefix("/admin", api.Handler()))
//
// With a TokenVerifier configured, every request must carry an HMAC-signed
// bearer token:
//
//	verifier, err := admin.NewTokenVerifier(admin.AuthConfig{
//		Secret: []byte(os.Getenv("ADMIN_SECRET")),
//		Issuer: "stageflow",
//	})
//	api, err = admin.NewAPI(admin.APIConfig{Controls: coord, Auth: verifier})
//
// The verified token subject is available to handlers and audit logging
// via SubjectFromContext.
package admin

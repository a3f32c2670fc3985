// Package license implements the license authorization engine: signed
// device-bound tokens, first-use device binding, device/user revocation
// overlays and per-user perfect-completion progress tracking.
//
// A license token is self-certifying: its signature binds one device id and
// one expiry date at issuance time, so format and freshness validate without
// any lookup. Server-side state is consulted only for binding, revocation and
// progress.
package license

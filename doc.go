// Package clubhouse implements the membership and authentication core of a
// small invite-only community site: phone verification codes, single-use
// invites, signed session cookies, and role checks.
//
// Sign-in and sign-up flows:
//   - Sign-in sends a one-time code to a registered phone, verifies it, and
//     issues a stateless signed session token carried in a cookie.
//   - Sign-up is gated by an invite code. Phone ownership is proven with the
//     same one-time code machinery before the member row is created; invite
//     redemption and member creation commit in a single transaction.
//
// Durable state lives in an embedded sqlite database accessed through Bun.
// Everything that must be exactly-once (code consumption, invite redemption,
// phone uniqueness) is enforced with conditional updates and unique
// constraints, never read-then-write application logic.
package clubhouse

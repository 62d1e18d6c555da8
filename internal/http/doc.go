// Package http exposes the gym scheduler as a JSON API.
//
// Public endpoints:
//   - POST /sessions {"username","password"} and POST /sessions/google
//     {"credential"} log a member in and answer with
//     {"access_token","expires_at","refresh_token","refresh_expires_at","member"}.
//   - POST /sessions/refresh {"refresh_token"} rotates the refresh token and
//     answers with the same shape.
//   - DELETE /sessions/current {"refresh_token"} revokes the session.
//   - GET /schedule?week=YYYY-MM-DD&class=Name projects the week containing
//     the given date.
//   - GET /classes and GET /classes/:id read the catalog.
//   - GET /healthz reports store reachability.
//
// Endpoints requiring "Authorization: Bearer <access token>":
//   - POST /classes, PUT /classes/:id, DELETE /classes/:id (administrators).
//   - POST /bookings {"pattern_id"}, POST /bookings/:id/cancel, GET /bookings.
//   - GET /members, POST /members, GET|PUT|DELETE /members/:id, where the id
//     "me" names the caller. Member dates use DD/MM/YYYY.
//
// Failures answer with {"error_code","message","errors"}. An expired access
// token yields 401 AUTH_EXPIRED, which clients resolve by refreshing; any other
// authentication failure yields 401 AUTH_INVALID.
package http

// Package http provides the HTTP handlers, middleware and websocket
// streams for the reservation API.
//
// Identity arrives from the gateway via the `X-User-ID` and `X-User-Admin`
// headers; there is no session handling in this service. The router exposes:
//   - GET /rooms, POST /rooms, GET /rooms/{id}, PUT /rooms/{id}: room catalog
//     endpoints exchanging the `roomDTO` payload defined in room_handler.go.
//     Mutations require an admin principal.
//   - GET /rooms/{id}/status and GET /status/overview: momentary occupancy
//     answers (free, occupied, ending_soon) served from the status cache.
//   - GET /rooms/{id}/schedule?date=YYYY-MM-DD: a room's reservations for one
//     date, ordered by start time.
//   - POST /reservations: creates a pending reservation and returns the
//     one-time confirmation token. GET /reservations lists the caller's
//     bookings; admins may pass ?user_id= to inspect others.
//   - GET /reservations/{id}, POST /reservations/{id}/confirm,
//     POST /reservations/{id}/cancel: reservation lifecycle endpoints.
//   - GET /availability?room_id=&date=&start_time=&end_time=: conflict check
//     without booking.
//   - POST /recurring, POST /recurring/preview, GET /recurring,
//     GET /recurring/{id}: recurring pattern materialization and inspection.
//   - GET /stats/dashboard and GET /activity: aggregate figures and the
//     recent activity feed.
//   - GET /ws/rooms/{id} and GET /ws/overview: websocket streams pushing a
//     snapshot on connect and status updates as reservations change.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http

// Package authgate is an embeddable credential and session engine built
// around rotating refresh tokens. A login starts a token family; every
// refresh atomically replaces the presented token within that family,
// and presenting a rotated-out token revokes the family outright.
//
// The engine hands out JWT access tokens validated statelessly, persists
// refresh-token records in PostgreSQL, and throttles attempts through
// Redis with fail-open semantics. It exposes plain Go methods; HTTP
// binding, transport, and token delivery belong to the host application.
package authgate

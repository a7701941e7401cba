// Package auth provides JWT access tokens and role-based authorisation
// for command-issuing operations.
//
// Every admin-facing command (wifi change, client mode, subscription
// create/update) passes through an Authorizer before any state is
// written; a denied command never reaches the outbox. The MQTT-side
// registration path runs under the service role since boards carry no
// user credentials.
package auth

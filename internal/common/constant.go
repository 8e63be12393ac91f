// Package common contains shared constants and sentinel errors used across
// StageKeeper components.
package common

// AccessTokenHeaderName is the gRPC/HTTP metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// IOFailureDetail replaces local filesystem errors on public surfaces, so
// staging paths are not disclosed.
const IOFailureDetail = "staging storage failure"

// OctetStream is the content type used for raw staged payloads.
const OctetStream = "application/octet-stream"

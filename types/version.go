// Package types holds the version constants shared by the uadp CLI and
// the decoded event contract.
//
//nolint:revive // types is a common Go package naming convention
package types

// Version is the release version of the uadp module.
const Version = "0.3.0"

// ContractVersion stamps every adapter.DecodedEvent. It moves in lockstep
// with Version so a consumer can tell which release produced an event.
const ContractVersion = Version

package config

const (
	// Membership circuit artifacts for the anonymous membership proof.
	// The hashes pin the exact circuit version the relay verifies against.
	MembershipCircuitURL          = "https://circuits.ams3.cdn.digitaloceanspaces.com/zkdao/dev/membership.wasm"
	MembershipCircuitHash         = "0b41a0a09eb4b7ec765e66422eb5919325a6e4df0534f2b3a8c7d012e95cc871"
	MembershipProvingKeyURL       = "https://circuits.ams3.cdn.digitaloceanspaces.com/zkdao/dev/membership_pkey.zkey"
	MembershipProvingKeyHash      = "8de35bd4e0c29453e1e6c3152df7ae80a0f27301a80e99ab1e527d5dd387a1e4"
	MembershipVerificationKeyURL  = "https://circuits.ams3.cdn.digitaloceanspaces.com/zkdao/dev/membership_vkey.json"
	MembershipVerificationKeyHash = "2cf44b5267a1a68851e04b0f3ce4b79ef3c1b5400e307b0be2623eab57ae3da0"
)

const (
	// DefaultRelayHost and DefaultRelayPort are where the reference relay
	// service listens.
	DefaultRelayHost = "0.0.0.0"
	DefaultRelayPort = 9095
	// DefaultDataDir is the relay's state directory, relative to the user
	// home directory.
	DefaultDataDir = ".zkdao"
)

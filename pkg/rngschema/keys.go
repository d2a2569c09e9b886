// Copyright 2025 Certen Protocol
//
// Storage key namespace for the randomness service, per the wire-level
// contract: service id 9000, service name "exonum_rng".

package rngschema

// ServiceID and ServiceName identify this service on the wire. The name is
// also the storage namespace prefix below, and is kept exactly as specified
// regardless of which consensus host it runs on.
const (
	ServiceID   = 9000
	ServiceName = "exonum_rng"

	commitmentsNS = ServiceName + ".validators_commitments"
	vdfResultsNS  = ServiceName + ".vdf_results"

	// SeedKey and RandomnessKey are single-entry cells, not maps.
	SeedKey       = ServiceName + ".seed"
	RandomnessKey = ServiceName + ".randomness"
)

func commitmentKey(pubKeyHex string) []byte {
	return []byte(commitmentsNS + "." + pubKeyHex)
}

func vdfResultKey(pubKeyHex string) []byte {
	return []byte(vdfResultsNS + "." + pubKeyHex)
}

func commitmentsPrefix() []byte {
	return []byte(commitmentsNS + ".")
}

func vdfResultsPrefix() []byte {
	return []byte(vdfResultsNS + ".")
}

package system

const (
	accountStorageOverhead = 128

	// lamports_per_byte_year * exemption_threshold, using the cluster
	// default rent parameters (3480 lamports per byte-year, 2 years).
	lamportsPerByteExempt = 6960
)

// RentExemptMinimum returns the minimum lamport balance an account of the
// given data size must hold to be exempt from rent collection.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/rent.rs#L70
func RentExemptMinimum(dataLen uint64) uint64 {
	return (dataLen + accountStorageOverhead) * lamportsPerByteExempt
}

package pointer

// String returns a pointer to the provided string value
func String(value string) *string {
	return &value
}

// StringOrDefault returns the pointer if not nil, otherwise the default value
func StringOrDefault(value *string, defaultValue string) *string {
	if value != nil {
		return value
	}
	return &defaultValue
}

// StringCopy returns a pointer that's a copy of the provided value
func StringCopy(value *string) *string {
	if value == nil {
		return nil
	}

	return String(*value)
}

// Uint32 returns a pointer to the provided uint32 value
func Uint32(value uint32) *uint32 {
	return &value
}

// Uint64 returns a pointer to the provided uint64 value
func Uint64(value uint64) *uint64 {
	return &value
}

// Uint64OrDefault returns the pointer if not nil, otherwise the default value
func Uint64OrDefault(value *uint64, defaultValue uint64) *uint64 {
	if value != nil {
		return value
	}
	return &defaultValue
}

// Uint64Copy returns a pointer that's a copy of the provided value
func Uint64Copy(value *uint64) *uint64 {
	if value == nil {
		return nil
	}

	return Uint64(*value)
}

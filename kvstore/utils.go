package kvstore

// ConcatBytes returns the concatenation of the given byte slices as a new slice.
func ConcatBytes(params ...[]byte) []byte {
	length := 0
	for _, param := range params {
		length += len(param)
	}

	result := make([]byte, 0, length)
	for _, param := range params {
		result = append(result, param...)
	}

	return result
}

// CopyBytes returns a copy of the given slice.
func CopyBytes(source []byte) []byte {
	if source == nil {
		return nil
	}

	target := make([]byte, len(source))
	copy(target, source)

	return target
}

// KeyPrefixUpperBound returns the smallest key that is larger than all keys with the given prefix,
// or nil if there is none (prefix consists of 0xff only).
func KeyPrefixUpperBound(prefix []byte) []byte {
	upperBound := CopyBytes(prefix)
	for i := len(upperBound) - 1; i >= 0; i-- {
		if upperBound[i] != 0xff {
			upperBound[i]++

			return upperBound[:i+1]
		}
	}

	return nil
}

package axi

// laneOffset returns the first byte lane that a beat of n bytes at addr uses
// on a bus that is w bytes wide.
func laneOffset(addr uint64, n, w int) int {
	if n >= w {
		return 0
	}

	return int(addr%uint64(w)) &^ (n - 1)
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func reverseBits(v uint64, n int) uint64 {
	var out uint64
	for i := 0; i < n; i++ {
		if v&(1<<uint(i)) != 0 {
			out |= 1 << uint(n-1-i)
		}
	}

	return out
}

// placeLanes puts the bytes of one beat onto a bus word.
func placeLanes(data []byte, addr uint64, w int, bigEndian bool) []byte {
	n := len(data)
	beat := make([]byte, n)
	copy(beat, data)

	if bigEndian {
		reverseBytes(beat)
	}

	word := make([]byte, w)
	copy(word[laneOffset(addr, n, w):], beat)

	return word
}

// extractLanes takes the n bytes of one beat and the matching strobe bits off
// a bus word.
func extractLanes(
	word []byte,
	strobe uint64,
	addr uint64,
	n int,
	bigEndian bool,
) ([]byte, uint64) {
	off := laneOffset(addr, n, len(word))

	data := make([]byte, n)
	copy(data, word[off:])

	mask := uint64(1)<<uint(n) - 1
	if n >= 64 {
		mask = ^uint64(0)
	}
	strb := (strobe >> uint(off)) & mask

	if bigEndian {
		reverseBytes(data)
		strb = reverseBits(strb, n)
	}

	return data, strb
}

// mergeStrobe returns data with the bytes whose strobe bit is 0 taken from
// old.
func mergeStrobe(old, data []byte, strobe uint64) []byte {
	out := make([]byte, len(data))
	for i := range data {
		if strobe&(1<<uint(i)) != 0 {
			out[i] = data[i]
		} else {
			out[i] = old[i]
		}
	}

	return out
}

package commitlog

// fletcher32 is the running-sum checksum used for both the per-block
// payload checksum and the header checksum. It processes data two bytes
// at a time as little-endian 16-bit words, reducing sum1/sum2 modulo
// 0xffff periodically to bound overflow, per the classic Fletcher-32
// algorithm.
func fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32 = 0xffff, 0xffff
	n := len(data)
	i := 0
	for i < n {
		// 359 is the largest block count of 16-bit words that can
		// accumulate in sum1 without overflowing before a uint32
		// reduction is required.
		blockLen := n - i
		if blockLen > 359*2 {
			blockLen = 359 * 2
		}
		j := 0
		for j+1 < blockLen {
			word := uint32(data[i+j]) | uint32(data[i+j+1])<<8
			sum1 += word
			sum2 += sum1
			j += 2
		}
		if j < blockLen {
			sum1 += uint32(data[i+j])
			sum2 += sum1
			j++
		}
		i += blockLen
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	sum1 = (sum1 & 0xffff) + (sum1 >> 16)
	sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	return (sum2 << 16) | sum1
}

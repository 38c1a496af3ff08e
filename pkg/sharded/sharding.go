package sharded

import "hash/fnv"

// shardIndex returns the shard a key belongs to. numShards must be a power
// of two so the bitwise AND below is a valid modulus.
func shardIndex(key string, numShards int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key)) // FNV-1a's Write never errors
	return int(h.Sum32() & uint32(numShards-1))
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

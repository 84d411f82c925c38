package shard

import (
	"github.com/spaolacci/murmur3"
)

// KeyGroupHash hashes a logical key-group ("app") name. Its high bits pick
// the routing prefix shared by every series in the group.
func KeyGroupHash(group string) uint32 {
	return murmur3.Sum32([]byte(group))
}

// SeriesHash hashes one series key. Its low bits scatter the group's
// series across the group's 2^spread shards.
func SeriesHash(seriesKey string) uint32 {
	return murmur3.Sum32([]byte(seriesKey))
}

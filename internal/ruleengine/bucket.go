package ruleengine

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Buckets is the number of buckets subjects are hashed into.
// Variant weights are expressed in the same unit (percent).
const Buckets = 100

// Bucket deterministically maps subject (e.g. a user id) into [0, Buckets)
// using Murmur3 over "subject:salt". The salt (e.g. an experiment id) keeps
// a user's bucket independent across experiments.
//
// Thread-Safety: stateless, a new hasher is created per call.
func Bucket(subject, salt string) int {
	hasher := murmur3.New32()
	// Write on a hash.Hash never returns an error.
	_, _ = hasher.Write([]byte(fmt.Sprintf("%s:%s", subject, salt)))
	return int(hasher.Sum32() % Buckets)
}

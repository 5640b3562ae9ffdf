package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Key derives a content-addressed key for op called with args.
//
// Argument names are sorted before hashing, so the key does not depend on
// the order in which args were built. The op name prefixes the key.
func Key(op string, args map[string]any) string {
	payload, err := json.Marshal(struct {
		Op   string         `json:"op"`
		Args map[string]any `json:"args"`
	}{Op: op, Args: args})
	if err != nil {
		// fmt prints maps with sorted keys too.
		payload = []byte(fmt.Sprintf("%s|%v", op, args))
	}
	sum := blake3.Sum256(payload)
	return op + ":" + hex.EncodeToString(sum[:])
}

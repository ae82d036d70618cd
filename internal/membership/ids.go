package membership

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newCollection(name string) *Collection {
	return &Collection{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

func encodeCollection(c *Collection) ([]byte, error) {
	return json.Marshal(c)
}

func decodeCollection(b []byte) (*Collection, error) {
	var c Collection
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// dedupe drops repeated ids, keeping first occurrence order.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package pipeline

import "encoding/json"

// toPatch round-trips v through JSON so it can be merged into a job's
// opaque metadata map under key. This is the same round trip the metadata
// column itself goes through on write, so the shape a worker writes here is
// exactly the shape a later worker reads back from storage.
func toPatch(key string, v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, err
	}
	return map[string]interface{}{key: decoded}, nil
}

// fromMetadata decodes metadata[key] into a T, returning (nil, nil) if the
// key is absent (e.g. no plan has been recorded yet).
func fromMetadata[T any](metadata map[string]interface{}, key string) (*T, error) {
	raw, ok := metadata[key]
	if !ok || raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// attemptsFromMetadata reads the coding-attempts counter a prior review
// rejection left behind. Absent means this is the job's first pass through
// coding.
func attemptsFromMetadata(metadata map[string]interface{}) int {
	raw, ok := metadata["attempts"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

package kv

import (
	"encoding/json"

	"github.com/cuemby/kvs/pkg/kverr"
)

// record is one log entry: either a Set or a Remove. Records are
// self-delimiting JSON objects concatenated into log files — a
// json.Decoder can walk a stream of them without any extra framing,
// which is what replay (replayFile) relies on.
type record struct {
	Set    *setRecord
	Remove *string
}

type setRecord struct {
	Key   string
	Value string
}

func setRecordOf(key, value string) record {
	return record{Set: &setRecord{Key: key, Value: value}}
}

func removeRecordOf(key string) record {
	return record{Remove: &key}
}

func (r record) MarshalJSON() ([]byte, error) {
	switch {
	case r.Set != nil:
		return json.Marshal(map[string][2]string{"Set": {r.Set.Key, r.Set.Value}})
	case r.Remove != nil:
		return json.Marshal(map[string]string{"Remove": *r.Remove})
	default:
		return nil, kverr.New(kverr.Codec, "record has no variant set")
	}
}

func (r *record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return kverr.Wrap(kverr.Codec, "decode record envelope", err)
	}
	if len(raw) != 1 {
		return kverr.New(kverr.Codec, "record must have exactly one variant")
	}

	if v, ok := raw["Set"]; ok {
		var pair [2]string
		if err := json.Unmarshal(v, &pair); err != nil {
			return kverr.Wrap(kverr.Codec, "decode Set record", err)
		}
		r.Set = &setRecord{Key: pair[0], Value: pair[1]}
		return nil
	}
	if v, ok := raw["Remove"]; ok {
		var key string
		if err := json.Unmarshal(v, &key); err != nil {
			return kverr.Wrap(kverr.Codec, "decode Remove record", err)
		}
		r.Remove = &key
		return nil
	}
	return kverr.New(kverr.Codec, "unknown record variant")
}

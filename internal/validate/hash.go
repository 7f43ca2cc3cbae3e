package validate

import (
	"crypto/sha256"
	"encoding/json"
	"sort"

	"github.com/toxzak-svg/sentibridge/internal/domain"
)

// SourceHash computes the 32-byte SHA-256 digest of the canonical JSON
// encoding (sorted keys, no whitespace) of desc, binding an aggregate to
// its exact source batch (spec.md §3, §8).
//
// encoding/json already emits struct fields without extra whitespace and,
// for map[string]any, sorts keys; domain.SourceDescriptor is a struct with
// a fixed field set, so we round-trip it through a map to get the same
// sorted-key guarantee Python's json.dumps(sort_keys=True) gives, rather
// than relying on Go struct field declaration order matching it by luck.
func SourceHash(desc domain.SourceDescriptor) ([32]byte, error) {
	raw, err := json.Marshal(desc)
	if err != nil {
		return [32]byte{}, err
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return [32]byte{}, err
	}
	canonical, err := canonicalJSON(asMap)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(canonical), nil
}

// canonicalJSON encodes v with object keys sorted and no insignificant
// whitespace, matching Python's
// json.dumps(data, sort_keys=True, separators=(",", ":")).
func canonicalJSON(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := canonicalJSON(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := canonicalJSON(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}

// OracleUpdateFromAggregate converts a validated AggregatedSentiment into
// the basis-points OracleUpdate submitted on-chain. See SPEC_FULL.md §4,
// item 3: there is no 18-decimal fixed-point score field.
func OracleUpdateFromAggregate(agg domain.AggregatedSentiment, desc domain.SourceDescriptor) (domain.OracleUpdate, error) {
	bps := int((agg.Score + 1.0) / 2.0 * 10000)
	if err := ScoreBps(bps); err != nil {
		return domain.OracleUpdate{}, err
	}
	if agg.SampleSize < 1 {
		return domain.OracleUpdate{}, newError("sample_size", "must be >= 1")
	}
	hash, err := SourceHash(desc)
	if err != nil {
		return domain.OracleUpdate{}, err
	}
	return domain.OracleUpdate{
		Token:      agg.TokenAddress,
		Score:      bps,
		SampleSize: agg.SampleSize,
		SourceHash: hash,
	}, nil
}

// ScoreBps enforces the [0, 10000] basis-points range required before
// signing (spec.md §4.6, §8).
func ScoreBps(bps int) error {
	if bps < 0 || bps > 10000 {
		return newError("score", "must be in [0, 10000] basis points")
	}
	return nil
}

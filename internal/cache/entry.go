package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rafaeljc/daffodil/internal/experiment"
)

// Entry kinds and their current schema versions. Bump a version whenever the
// JSON shape of its payload changes; older entries are then discarded on read.
const (
	KindExperiments   = "experiments"
	KindBannerMixture = "banner_mixture"

	experimentsVersion   = 1
	bannerMixtureVersion = 1
)

// errStale marks an entry written by a different schema (kind or version).
var errStale = errors.New("stale cache entry")

// ExperimentAssignmentEntry is the cached result of experiment resolution.
type ExperimentAssignmentEntry struct {
	Assignments []experiment.Assignment `json:"assignments"`
}

// BannerSource records which experiment variant contributed banners to a mixture.
type BannerSource struct {
	ExperimentID string `json:"experiment_id"`
	Variant      string `json:"variant"`
	Banners      []int  `json:"banners"`
}

// BannerMixture is a user's randomized banner subset.
type BannerMixture struct {
	Banners    []int          `json:"banners"`
	Provenance []BannerSource `json:"provenance"`
	AssignedAt time.Time      `json:"assigned_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	TTLSeconds int64          `json:"ttl_seconds"`
}

// BannerMixtureEntry is the cached banner mixture.
type BannerMixtureEntry struct {
	Mixture BannerMixture `json:"mixture"`
}

// encodeEntry frames payload as "kind/vN|json".
func encodeEntry(kind string, version int, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s entry: %w", kind, err)
	}

	buf := make([]byte, 0, len(kind)+len(data)+8)
	buf = append(buf, kind...)
	buf = append(buf, "/v"...)
	buf = strconv.AppendInt(buf, int64(version), 10)
	buf = append(buf, '|')
	buf = append(buf, data...)
	return buf, nil
}

// decodeEntry unframes raw into dst. It returns errStale when the header does
// not match kind and version, including entries with no header at all.
func decodeEntry(raw []byte, kind string, version int, dst any) error {
	header, body, ok := bytes.Cut(raw, []byte{'|'})
	if !ok {
		return errStale
	}

	gotKind, gotVersion, ok := bytes.Cut(header, []byte("/v"))
	if !ok || string(gotKind) != kind {
		return errStale
	}
	v, err := strconv.Atoi(string(gotVersion))
	if err != nil || v != version {
		return errStale
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errStale, err)
	}
	return nil
}

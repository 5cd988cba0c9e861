package indicator

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// SnapshotVersion is the schema version written into every Snapshot.
const SnapshotVersion = 1

// Snapshot is the serializable form of a computed result. It is what the
// cache and the result store hold, and what the HTTP API returns.
type Snapshot struct {
	Version     int        `json:"version"` // schema version for forward compat
	Name        string     `json:"name"`
	Params      Params     `json:"params"`
	Precision   int        `json:"precision"`
	Plots       []PlotMeta `json:"plots"`
	Fingerprint string     `json:"fingerprint"` // identifies the input series
	Records     []Record   `json:"records"`
}

// NewSnapshot captures res, computed over the series identified by fingerprint.
func NewSnapshot(res Result, fingerprint string) *Snapshot {
	return &Snapshot{
		Version:     SnapshotVersion,
		Name:        res.Name,
		Params:      res.Params.Clone(),
		Precision:   res.Precision,
		Plots:       PlotMetas(res.Plots),
		Fingerprint: fingerprint,
		Records:     res.Records,
	}
}

// CacheKey is the key a snapshot is cached under.
func (s *Snapshot) CacheKey() string {
	return CacheKey(s.Name, s.Params, s.Fingerprint)
}

// CacheKey builds "ind:result:<name>:<params>:<fingerprint>".
func CacheKey(name string, params Params, fingerprint string) string {
	return "ind:result:" + name + ":" + params.String() + ":" + fingerprint
}

// Result turns the snapshot back into a Result. The plot decision functions
// are not serialized, so they are recovered from the registered descriptor.
func (s *Snapshot) Result(reg *Registry) (Result, error) {
	d, err := reg.Get(s.Name)
	if err != nil {
		return Result{}, err
	}
	plots, err := d.RegeneratePlots(s.Params)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Name:      s.Name,
		Params:    s.Params.Clone(),
		Plots:     plots,
		Precision: s.Precision,
		Records:   s.Records,
	}, nil
}

// MarshalSnapshot serializes a snapshot to JSON.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot deserializes and checks the schema version.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	if s.Version != SnapshotVersion {
		return nil, errors.Errorf("snapshot version %d not supported", s.Version)
	}
	for i, r := range s.Records {
		if r == nil {
			s.Records[i] = Record{}
		}
	}
	return &s, nil
}

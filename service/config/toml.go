package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// NewToml layers a TOML file over the hardcoded defaults and then applies
// VSTRACK_* environment overrides. A missing file is not an error.
func NewToml(path string) (IService, error) {
	s := defaults()

	if _, err := toml.DecodeFile(path, &s); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, xerrors.Errorf("decoding config file %s: %w", path, err)
	}

	if err := applyEnv(&s); err != nil {
		return nil, err
	}

	if s.Camera.Name == "" {
		s.Camera.Name = s.Camera.ID
	}

	return &hardcodedService{s: s}, nil
}

func applyEnv(s *settings) error {
	strs := map[string]*string{
		"VSTRACK_CAMERA_URL":  &s.Camera.RtspURL,
		"VSTRACK_CAMERA_ID":   &s.Camera.ID,
		"VSTRACK_MODEL_PATH":  &s.Classifier.ModelPath,
		"VSTRACK_ACCEL_HINT":  &s.Classifier.AccelHint,
		"VSTRACK_DB_PATH":     &s.DatabasePath,
		"VSTRACK_TRACK_MATCH": &s.Tracker.Matcher,
	}
	for k, p := range strs {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			*p = v
		}
	}

	ints := map[string]*int{
		"VSTRACK_SAMPLING_STRIDE": &s.Pipeline.SamplingStride,
		"VSTRACK_FLUSH_SECONDS":   &s.Aggregator.FlushIntervalSecs,
	}
	for k, p := range ints {
		v, ok := os.LookupEnv(k)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return xerrors.Errorf("env %s: %w", k, err)
		}
		*p = n
	}

	if v, ok := os.LookupEnv("VSTRACK_COOLDOWN_SECONDS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return xerrors.Errorf("env VSTRACK_COOLDOWN_SECONDS: %w", err)
		}
		s.Pipeline.CooldownSecs = f
	}

	return nil
}

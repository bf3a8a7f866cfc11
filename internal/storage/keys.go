package storage

import (
	"path"
	"time"

	"github.com/rtm0/era5query/internal/era5"
)

// DatasetKey locates one ERA5 dataset file in the bucket.
type DatasetKey struct {
	Prefix   string // e.g., "era5/reanalysis-era5-single-levels"
	Variable string // CDS variable name, e.g., "2m_temperature"
	Start    time.Time
	End      time.Time
}

func (k DatasetKey) Key() string {
	return path.Join(k.Prefix, k.Variable, era5.FileName(k.Variable, k.Start, k.End))
}

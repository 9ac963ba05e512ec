package models

import "time"

type Dataset struct {
	Name             string         `json:"name"`
	Records          []*LeadRecord  `json:"records,omitempty"`
	RecordCount      int            `json:"record_count"`
	ImportedByteSize int64          `json:"imported_byte_size"`
	LastImportAt     *time.Time     `json:"last_import_at,omitempty"`
	PhoneCount       int            `json:"phone_count"`
	RegionCounts     map[string]int `json:"region_counts"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Summary returns a copy of the dataset without its records.
func (d *Dataset) Summary() *Dataset {
	s := *d
	s.Records = nil
	s.RegionCounts = make(map[string]int, len(d.RegionCounts))
	for region, count := range d.RegionCounts {
		s.RegionCounts[region] = count
	}
	return &s
}

// DatasetRepository persists datasets and their records. Get returns nil, nil
// when the dataset does not exist.
type DatasetRepository interface {
	Create(dataset *Dataset) error
	Get(name string) (*Dataset, error)
	List() ([]string, error)
	Delete(name string) error
	// AppendRecords stores the new records and the dataset aggregates in a
	// single step.
	AppendRecords(dataset *Dataset, records []*LeadRecord) error
	UpdateRecord(datasetName string, record *LeadRecord) error
}

package services

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"lead-console/internal/export"
	"lead-console/internal/models"
	"lead-console/internal/utils"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrUploadDisabled    = errors.New("export upload is not configured")
)

// ExportUploader stores a rendered export and returns where it can be fetched.
type ExportUploader interface {
	UploadExport(doc *models.Document) (string, error)
}

type ExportService struct {
	datasets *DatasetStore
	uploader ExportUploader
	now      func() time.Time
}

// NewExportService accepts a nil uploader when uploads are disabled.
func NewExportService(datasets *DatasetStore, uploader ExportUploader) *ExportService {
	return &ExportService{datasets: datasets, uploader: uploader, now: time.Now}
}

// Render builds a csv or xlsx export of a dataset.
func (e *ExportService) Render(dataset, format string) (*models.Document, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	ds, err := e.datasets.Get(dataset)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, ds.Records); err != nil {
			return nil, err
		}
		data = buf.Bytes()
	case "xlsx":
		data, err = export.WriteXLSX(ds.Records)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return &models.Document{
		FileName:    fmt.Sprintf("%s_%s.%s", ds.Name, e.now().Format("20060102_1504"), format),
		ContentType: utils.GetMimeFromExtension(format),
		Data:        data,
	}, nil
}

func (e *ExportService) CanUpload() bool {
	return e.uploader != nil
}

func (e *ExportService) Upload(doc *models.Document) (string, error) {
	if e.uploader == nil {
		return "", ErrUploadDisabled
	}
	return e.uploader.UploadExport(doc)
}

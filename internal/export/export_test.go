package export_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead-console/internal/export"
	"lead-console/internal/models"
)

func sampleRecords() []*models.LeadRecord {
	at := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	return []*models.LeadRecord{
		{
			ID:                "1",
			LastName:          "DUPONT",
			FirstName:         "Jean",
			Email:             "jean.dupont@example.fr",
			Mobile:            "0612345678",
			City:              "Paris",
			PostalCode:        "75001",
			Region:            "75",
			Address:           "12 rue de Rivoli",
			IBAN:              "FR7630006000011234567890189",
			BIC:               "AGRIFRPP",
			BirthDate:         "01/02/1980",
			Status:            "client",
			Notes:             []string{"rappeler lundi", "a signé, \"devis\" envoyé"},
			NextAppointmentAt: &at,
		},
		{
			ID:          "2",
			LastName:    "Marie Curie",
			RawFullName: "Marie Curie",
			VoIP:        "0912345678",
			City:        "Saint-Denis",
			PostalCode:  "97400",
			Region:      "974",
		},
	}
}

func TestWriteCSVHeaderAndRow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, sampleRecords()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(export.Columns, ","), lines[0])
	assert.Contains(t, lines[1], "rappeler lundi | a signé")
	assert.Contains(t, lines[1], "2024-03-04T14:30:00Z")
	assert.True(t, strings.HasPrefix(lines[2], "2,Marie Curie,,Marie Curie,"))
}

func TestCSVRoundTripPreservesNonDerivedFields(t *testing.T) {
	records := sampleRecords()
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, records))

	back, rejected, err := export.ReadCSV(&buf)
	require.NoError(t, err)
	assert.Empty(t, rejected)

	ignoreDerived := cmpopts.IgnoreFields(models.LeadRecord{}, "ID", "Region", "NextAppointmentAt")
	if diff := cmp.Diff(records, back, ignoreDerived, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVAcceptsPartialHeader(t *testing.T) {
	input := "mobile,last_name\n06 12 34 56 78,Durand\n"
	records, _, err := export.ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Durand", records[0].LastName)
	assert.Equal(t, "06 12 34 56 78", records[0].Mobile)
}

func TestReadCSVEmptyInput(t *testing.T) {
	_, _, err := export.ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	data, err := export.WriteXLSX(sampleRecords())
	require.NoError(t, err)
	require.NotEmpty(t, data)

	rows, err := export.ReadXLSXRows(data)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.Columns, rows[0])
	assert.Equal(t, "DUPONT", rows[1][1])
	assert.Equal(t, "974", rows[2][9])
}

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead-console/internal/models"
)

func TestDatasetStoreCreate(t *testing.T) {
	env := newTestEnv(t)

	tests := map[string]struct {
		name string
		err  error
	}{
		"valid":         {name: "leads_2024"},
		"trimmed":       {name: "  spaced  "},
		"existing":      {name: DefaultDatasetName, err: models.ErrDatasetExists},
		"empty":         {name: "", err: models.ErrInvalidDatasetName},
		"dash":          {name: "bad-name", err: models.ErrInvalidDatasetName},
		"accent":        {name: "été", err: models.ErrInvalidDatasetName},
		"too long":      {name: "abcdefghijabcdefghijabcdefghijabcdefghijk", err: models.ErrInvalidDatasetName},
		"forty is fine": {name: "abcdefghijabcdefghijabcdefghijabcdefghij"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := env.datasets.Create(tc.name)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDatasetStoreDeleteKeepsOne(t *testing.T) {
	env := newTestEnv(t)

	assert.ErrorIs(t, env.datasets.Delete(DefaultDatasetName), models.ErrLastDataset)
	assert.ErrorIs(t, env.datasets.Delete("missing"), models.ErrDatasetNotFound)

	_, err := env.datasets.Create("other")
	require.NoError(t, err)

	var deleted []string
	env.datasets.OnDelete(func(name string) error {
		deleted = append(deleted, name)
		return nil
	})
	require.NoError(t, env.datasets.Delete(DefaultDatasetName))
	assert.Equal(t, []string{DefaultDatasetName}, deleted)

	names, err := env.datasets.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, names)
}

func TestDatasetStoreImport(t *testing.T) {
	env := newTestEnv(t)

	added, err := env.datasets.Import(DefaultDatasetName, []*models.LeadRecord{
		{LastName: "DUPONT", Mobile: "0612345678", PostalCode: "75001", Region: "75"},
		{},
		{Email: "a@b.fr", VoIP: "0987654321", Region: "75"},
	}, 120)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = env.datasets.Import(DefaultDatasetName, []*models.LeadRecord{
		{FirstName: "Claire", Mobile: "0711223344", VoIP: "0122334455", Region: "13"},
	}, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	ds, err := env.datasets.Get(DefaultDatasetName)
	require.NoError(t, err)
	require.Len(t, ds.Records, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{ds.Records[0].ID, ds.Records[1].ID, ds.Records[2].ID})
	assert.Equal(t, 3, ds.RecordCount)
	assert.Equal(t, 4, ds.PhoneCount)
	assert.Equal(t, map[string]int{"75": 2, "13": 1}, ds.RegionCounts)
	assert.EqualValues(t, 150, ds.ImportedByteSize)
	require.NotNil(t, ds.LastImportAt)
	assert.True(t, ds.LastImportAt.Equal(env.clock.Now()))

	_, err = env.datasets.Import("missing", nil, 0)
	assert.ErrorIs(t, err, models.ErrDatasetNotFound)
}

func TestDatasetStoreFindByPhone(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		&models.LeadRecord{LastName: "A", Mobile: "0612345678"},
		&models.LeadRecord{LastName: "B", VoIP: "0612345678"},
		&models.LeadRecord{LastName: "C", Mobile: "0799999999"},
	)

	found, err := env.datasets.FindByPhone(DefaultDatasetName, "+33 6 12 34 56 78")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "A", found[0].LastName)
	assert.Equal(t, "B", found[1].LastName)

	found, err = env.datasets.FindByPhone(DefaultDatasetName, "0100000000")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = env.datasets.FindByPhone(DefaultDatasetName, "hello")
	assert.ErrorIs(t, err, models.ErrInvalidPhone)
}

func TestDatasetStoreNotes(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "A"}, &models.LeadRecord{LastName: "B"})

	_, err := env.datasets.AddNote(DefaultDatasetName, "2", "  rappeler lundi ")
	require.NoError(t, err)
	_, err = env.datasets.AddNote(DefaultDatasetName, "2", "absent")
	require.NoError(t, err)

	_, err = env.datasets.AddNote(DefaultDatasetName, "1", "   ")
	assert.ErrorIs(t, err, models.ErrEmptyNote)
	_, err = env.datasets.AddNote(DefaultDatasetName, "42", "x")
	assert.ErrorIs(t, err, models.ErrRecordNotFound)

	withNotes, err := env.datasets.WithNotes(DefaultDatasetName)
	require.NoError(t, err)
	require.Len(t, withNotes, 1)
	assert.Equal(t, []string{"rappeler lundi", "absent"}, withNotes[0].Notes)
}

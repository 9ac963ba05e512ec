package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"lead-console/internal/export"
	"lead-console/internal/models"
	"lead-console/internal/utils"
)

const maxJSONLine = 1 << 20

// ParseFile decodes an uploaded file by extension. Only an unsupported
// extension or an unreadable container (bad CSV header, invalid JSON array) is
// an error; bad entries inside a readable file are rejected one by one.
func ParseFile(filename string, data []byte) (Result, error) {
	ext, ok := utils.ImportExtension(filename)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", models.ErrUnsupportedExtension, filename)
	}

	switch ext {
	case ".txt":
		return ParseBlocks(string(data)), nil
	case ".csv":
		records, rejected, err := export.ReadCSV(bytes.NewReader(data))
		if err != nil {
			return Result{}, err
		}
		res := Result{Rejected: rejected}
		for _, r := range records {
			res.add(r, strings.Join(export.Row(r), ","))
		}
		return res, nil
	case ".json":
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return Result{}, fmt.Errorf("error decoding json array: %w", err)
		}
		var res Result
		for _, item := range raw {
			res.addJSON(item)
		}
		return res, nil
	case ".jsonl":
		var res Result
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLine)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			res.addJSON(append([]byte(nil), line...))
		}
		if err := scanner.Err(); err != nil {
			return res, fmt.Errorf("error reading jsonl: %w", err)
		}
		return res, nil
	}
	return Result{}, fmt.Errorf("%w: %s", models.ErrUnsupportedExtension, filename)
}

func (res *Result) addJSON(item []byte) {
	var record models.LeadRecord
	if err := json.Unmarshal(item, &record); err != nil {
		res.Rejected = append(res.Rejected, string(item))
		return
	}
	res.add(&record, string(item))
}

func (res *Result) add(record *models.LeadRecord, raw string) {
	if Normalize(record) {
		res.Records = append(res.Records, record)
		return
	}
	res.Rejected = append(res.Rejected, raw)
}

// Normalize cleans a record decoded from a structured file with the same rules
// the block parser applies, and reports whether it has identity. Ids and
// appointment projections are cleared since they belong to the target dataset.
func Normalize(record *models.LeadRecord) bool {
	record.ID = ""
	record.NextAppointmentAt = nil
	for _, s := range []*string{
		&record.LastName, &record.FirstName, &record.RawFullName, &record.Email,
		&record.Address, &record.City, &record.PostalCode, &record.BirthDate, &record.Status,
	} {
		*s = strings.TrimSpace(*s)
		if isAbsent(*s) {
			*s = ""
		}
	}

	record.Mobile, _ = utils.NormalizePhone(record.Mobile)
	record.VoIP, _ = utils.NormalizePhone(record.VoIP)
	if record.Email != "" && !strings.Contains(record.Email, "@") {
		record.Email = ""
	}
	record.IBAN, _ = normalizeIBAN(record.IBAN)
	record.BIC, _ = normalizeBIC(record.BIC)
	if _, ok := utils.RegionFromPostalCode(record.PostalCode); !ok {
		record.PostalCode = ""
	}

	notes := record.Notes[:0]
	for _, n := range record.Notes {
		if n = strings.TrimSpace(n); n != "" {
			notes = append(notes, n)
		}
	}
	record.Notes = notes
	if len(record.Notes) == 0 {
		record.Notes = nil
	}

	finalize(record)
	return record.HasIdentity()
}

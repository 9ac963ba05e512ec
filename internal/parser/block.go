// Package parser turns operator uploads into lead records. The block parser is
// a best-effort heuristic: it never fails, it only keeps or drops whole blocks.
package parser

import (
	"regexp"
	"strings"

	"lead-console/internal/models"
	"lead-console/internal/utils"
)

// Result holds the records extracted from a payload, in payload order, and the
// raw text of every block that produced no record.
type Result struct {
	Records  []*models.LeadRecord
	Rejected []string
}

type field int

const (
	fieldUnknown field = iota
	fieldBirthDate
	fieldEmail
	fieldStatus
	fieldAddress
	fieldCity
	fieldPostalCode
	fieldMobile
	fieldVoIP
	fieldIBAN
	fieldBIC
)

var fieldAliases = map[string]field{
	"date de naissance": fieldBirthDate,
	"naissance":         fieldBirthDate,
	"né le":             fieldBirthDate,
	"née le":            fieldBirthDate,
	"ne le":             fieldBirthDate,
	"ddn":               fieldBirthDate,
	"dob":               fieldBirthDate,
	"date of birth":     fieldBirthDate,
	"birth date":        fieldBirthDate,
	"email":             fieldEmail,
	"e-mail":            fieldEmail,
	"mail":              fieldEmail,
	"courriel":          fieldEmail,
	"statut":            fieldStatus,
	"status":            fieldStatus,
	"adresse":           fieldAddress,
	"address":           fieldAddress,
	"ville":             fieldCity,
	"city":              fieldCity,
	"code postal":       fieldPostalCode,
	"cp":                fieldPostalCode,
	"postal code":       fieldPostalCode,
	"zip":               fieldPostalCode,
	"mobile":            fieldMobile,
	"portable":          fieldMobile,
	"tel":               fieldMobile,
	"tél":               fieldMobile,
	"téléphone":         fieldMobile,
	"telephone":         fieldMobile,
	"phone":             fieldMobile,
	"gsm":               fieldMobile,
	"voip":              fieldVoIP,
	"fixe":              fieldVoIP,
	"tel fixe":          fieldVoIP,
	"tél fixe":          fieldVoIP,
	"ligne fixe":        fieldVoIP,
	"landline":          fieldVoIP,
	"iban":              fieldIBAN,
	"bic":               fieldBIC,
	"swift":             fieldBIC,
	"bic/swift":         fieldBIC,
}

var (
	ibanPattern       = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{11,}$`)
	bicPattern        = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
	citySuffixPattern = regexp.MustCompile(`^(.*?)\s*\((\d{5})\)\s*$`)
	blankSpace        = regexp.MustCompile(`\s+`)
)

// ParseBlocks splits a payload on blank lines and parses every block.
func ParseBlocks(text string) Result {
	var res Result
	for _, block := range SplitBlocks(text) {
		if record, ok := ParseBlock(block); ok {
			res.Records = append(res.Records, record)
		} else {
			res.Rejected = append(res.Rejected, block)
		}
	}
	return res
}

// SplitBlocks returns the non-empty blocks of a payload. Blocks are separated
// by one or more lines containing only whitespace.
func SplitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var blocks []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

// ParseBlock extracts one record from a block. It returns false when the block
// carries no mobile, voip, email, name or IBAN.
func ParseBlock(block string) (*models.LeadRecord, bool) {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	record := &models.LeadRecord{}

	// Banking details sometimes head the block.
	start := 0
	for ; start < len(lines); start++ {
		key, value, ok := splitKeyValue(lines[start])
		if !ok {
			break
		}
		f := fieldAliases[key]
		if f != fieldIBAN && f != fieldBIC {
			break
		}
		applyField(record, f, value)
	}

	nameSeen := false
	for _, line := range lines[start:] {
		key, value, ok := splitKeyValue(line)
		if !ok {
			if !nameSeen {
				nameSeen = true
				applyName(record, line)
			}
			continue
		}
		applyField(record, fieldAliases[key], value)
	}

	finalize(record)
	if !record.HasIdentity() {
		return nil, false
	}
	return record, true
}

func splitKeyValue(line string) (string, string, bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key := strings.ToLower(strings.TrimSpace(line[:idx]))
	key = blankSpace.ReplaceAllString(key, " ")
	return key, strings.TrimSpace(line[idx+1:]), true
}

func isAbsent(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, "N/A")
}

func applyName(record *models.LeadRecord, line string) {
	if isAbsent(line) {
		return
	}
	for _, sep := range []string{"-", "/"} {
		if strings.Count(line, sep) != 1 {
			continue
		}
		parts := strings.SplitN(line, sep, 2)
		last, first := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if last != "" && first != "" {
			record.LastName = last
			record.FirstName = first
			return
		}
	}
	record.LastName = line
	record.RawFullName = line
}

func applyField(record *models.LeadRecord, f field, value string) {
	if f == fieldUnknown || isAbsent(value) {
		return
	}
	switch f {
	case fieldBirthDate:
		record.BirthDate = value
	case fieldEmail:
		if strings.Contains(value, "@") {
			record.Email = value
		}
	case fieldStatus:
		record.Status = value
	case fieldAddress:
		record.Address = value
	case fieldCity:
		if m := citySuffixPattern.FindStringSubmatch(value); m != nil {
			record.City = strings.TrimSpace(m[1])
			record.PostalCode = m[2]
		} else {
			record.City = value
		}
	case fieldPostalCode:
		if record.PostalCode == "" {
			if _, ok := utils.RegionFromPostalCode(value); ok {
				record.PostalCode = strings.TrimSpace(value)
			}
		}
	case fieldMobile:
		if phone, ok := utils.NormalizePhone(value); ok {
			record.Mobile = phone
		}
	case fieldVoIP:
		if phone, ok := utils.NormalizePhone(value); ok {
			record.VoIP = phone
		}
	case fieldIBAN:
		if record.IBAN == "" {
			if iban, ok := normalizeIBAN(value); ok {
				record.IBAN = iban
			}
		}
	case fieldBIC:
		if record.BIC == "" {
			if bic, ok := normalizeBIC(value); ok {
				record.BIC = bic
			}
		}
	}
}

// finalize derives computed fields once all lines are read.
func finalize(record *models.LeadRecord) {
	record.Region = ""
	if region, ok := utils.RegionFromPostalCode(record.PostalCode); ok {
		record.Region = region
	}
}

func normalizeIBAN(value string) (string, bool) {
	iban := strings.ToUpper(strings.Join(strings.Fields(value), ""))
	if !ibanPattern.MatchString(iban) {
		return "", false
	}
	return iban, true
}

func normalizeBIC(value string) (string, bool) {
	bic := strings.ToUpper(strings.Join(strings.Fields(value), ""))
	if !bicPattern.MatchString(bic) {
		return "", false
	}
	return bic, true
}

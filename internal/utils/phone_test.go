package utils_test

import (
	"testing"

	"lead-console/internal/utils"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected string
		ok       bool
	}{
		"Canonical":               {input: "0612345678", expected: "0612345678", ok: true},
		"PlusPrefix":              {input: "+33612345678", expected: "0612345678", ok: true},
		"DoubleZeroPrefix":        {input: "0033612345678", expected: "0612345678", ok: true},
		"SpacesAndDots":           {input: "06 12.34-56 78", expected: "0612345678", ok: true},
		"PlusWithTrunkZero":       {input: "+33 (0)6 12 34 56 78", ok: false},
		"NineDigitsMissingZero":   {input: "612345678", expected: "0612345678", ok: true},
		"ChatIDDigits":            {input: "33612345678", ok: false},
		"TooShort":                {input: "06123", ok: false},
		"TooLong":                 {input: "061234567890", ok: false},
		"NotStartingWithZero":     {input: "1612345678", ok: false},
		"Empty":                   {input: "", ok: false},
		"Letters":                 {input: "N/A", ok: false},
		"OtherCountryCode":        {input: "+44 20 7946 0958", ok: false},
		"NineDigitsAfterStripped": {input: "6 12 34 56 78", expected: "0612345678", ok: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := utils.NormalizePhone(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestPhoneFromInternational(t *testing.T) {
	phone, ok := utils.PhoneFromInternational("33612345678")
	assert.True(t, ok)
	assert.Equal(t, "0612345678", phone)

	for _, bad := range []string{"0612345678", "44612345678", "3361234567", "33abcdefghi"} {
		_, ok := utils.PhoneFromInternational(bad)
		assert.False(t, ok, bad)
	}
}

func TestNormalizePhone_EquivalentForms(t *testing.T) {
	a, okA := utils.NormalizePhone("+33612345678")
	b, okB := utils.NormalizePhone("0612345678")
	assert.True(t, okA)
	assert.True(t, okB)
	assert.Equal(t, a, b)
	assert.Equal(t, "0612345678", a)
}

func TestRegionFromPostalCode(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected string
		ok       bool
	}{
		"Paris":         {input: "75001", expected: "75", ok: true},
		"Corsica":       {input: "20000", expected: "20", ok: true},
		"Guadeloupe":    {input: "97110", expected: "971", ok: true},
		"NewCaledonia":  {input: "98800", expected: "988", ok: true},
		"LeadingZero":   {input: "01000", expected: "01", ok: true},
		"TrimmedSpaces": {input: " 69002 ", expected: "69", ok: true},
		"FourDigits":    {input: "7500", ok: false},
		"SixDigits":     {input: "750011", ok: false},
		"Letters":       {input: "75A01", ok: false},
		"Empty":         {input: "", ok: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := utils.RegionFromPostalCode(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestPhoneToInternational(t *testing.T) {
	assert.Equal(t, "33612345678", utils.PhoneToInternational("0612345678"))
	assert.Equal(t, "12345", utils.PhoneToInternational("12345"))
}

func TestImportExtension(t *testing.T) {
	ext, ok := utils.ImportExtension("Leads.TXT")
	assert.True(t, ok)
	assert.Equal(t, ".txt", ext)

	_, ok = utils.ImportExtension("dump.jsonl")
	assert.True(t, ok)

	ext, ok = utils.ImportExtension("photo.png")
	assert.False(t, ok)
	assert.Equal(t, ".png", ext)
}

func TestIsURL(t *testing.T) {
	assert.True(t, utils.IsURL("https://hooks.example.com/reminders"))
	assert.True(t, utils.IsURL("HTTP://example.com"))
	assert.False(t, utils.IsURL("33612345678@s.whatsapp.net"))
	assert.True(t, utils.IsWebSocketTarget("ws:supervisors"))
}

func TestFormatPhone(t *testing.T) {
	assert.Equal(t, "06 12 34 56 78", utils.FormatPhone("0612345678"))
	assert.Equal(t, "123", utils.FormatPhone("123"))
}

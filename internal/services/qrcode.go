package services

import (
	"fmt"

	"github.com/skip2/go-qrcode"

	"lead-console/internal/models"
	"lead-console/internal/utils"
)

// DialQRCode renders a tel: link for a canonical number as a PNG, so an
// operator can start the call by scanning it with a phone.
func DialQRCode(phone string) ([]byte, error) {
	canonical, ok := utils.NormalizePhone(phone)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidPhone, phone)
	}
	png, err := qrcode.Encode("tel:+"+utils.PhoneToInternational(canonical), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("error generating QR code: %v", err)
	}
	return png, nil
}

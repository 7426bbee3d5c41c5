// Package credentials builds and delivers registration passes: a QR code
// carrying the participant id, a printable PDF around it, and the email
// that delivers it. Issuance runs on a background Worker with retries.
package credentials

import (
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// ErrGeneration is returned when a QR or PDF render produced nothing.
var ErrGeneration = errors.New("credential generation failed")

// EncodeQR renders participantID as a PNG QR code.
func EncodeQR(participantID string) ([]byte, error) {
	if participantID == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrGeneration)
	}
	png, err := qrcode.Encode(participantID, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("%w: empty QR image", ErrGeneration)
	}
	return png, nil
}

package uri

import (
	"strings"

	"github.com/skip2/go-qrcode"
	"moff.io/walletconnect/pkg/errors"
)

// QRCode returns a PNG of the pairing string, size pixels wide.
func (u *URI) QRCode(size int) ([]byte, error) {
	png, err := qrcode.Encode(u.Encode(), qrcode.Medium, size)
	if err != nil {
		return nil, errors.WrapAndReport(err, "encode wallet connect qr code")
	}
	return png, nil
}

// TerminalQR renders the pairing string as block characters, quiet zone included.
func (u *URI) TerminalQR() (string, error) {
	q, err := qrcode.New(u.Encode(), qrcode.Low)
	if err != nil {
		return "", errors.WrapAndReport(err, "encode wallet connect qr code")
	}
	var sb strings.Builder
	for _, row := range q.Bitmap() {
		for _, dark := range row {
			if dark {
				sb.WriteString("██")
			} else {
				sb.WriteString("  ")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

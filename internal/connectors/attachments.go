package connectors

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"
)

// Attachment is one spreadsheet pulled out of a report mail.
type Attachment struct {
	Filename string
	Data     []byte
}

var spreadsheetExts = []string{".xlsx", ".xls", ".xlsm", ".csv"}

// ExtractSpreadsheets parses a raw RFC822 message and returns its
// spreadsheet attachments. Other attachment types are ignored; resellers
// routinely attach logos and PDF cover letters.
func ExtractSpreadsheets(raw []byte) ([]Attachment, string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}

	var out []Attachment
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			continue
		}
		lower := strings.ToLower(filename)
		for _, ext := range spreadsheetExts {
			if strings.HasSuffix(lower, ext) {
				out = append(out, Attachment{Filename: filename, Data: att.Content})
				break
			}
		}
	}

	return out, env.GetHeader("Subject"), nil
}

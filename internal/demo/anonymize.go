package demo

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Columns treated as protected identity fields. Cells under these headers are
// blanked during anonymization regardless of content.
var phiColumns = map[string]bool{
	"name":  true,
	"email": true,
	"phone": true,
	"ssn":   true,
	"mrn":   true,
}

// patientIDColumn is replaced by a one-way digest column during anonymization.
const (
	patientIDColumn   = "patient_id"
	patientHashColumn = "patient_hash"
)

// HashPatientID derives the public stand-in for a patient identifier.
func HashPatientID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "sha256:" + hex.EncodeToString(sum[:8])
}

// AnonymizePatientCSV copies a patient CSV from r to w with identity fields
// removed: protected columns are blanked and the patient_id column is renamed
// to patient_hash with each value replaced by its digest. All other columns
// pass through untouched.
func AnonymizePatientCSV(r io.Reader, w io.Writer) error {
	cr := csv.NewReader(r)
	cw := csv.NewWriter(w)

	header, err := cr.Read()
	if err == io.EOF {
		return fmt.Errorf("empty input: no header row")
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	blankIdx := make(map[int]bool)
	hashIdx := -1
	outHeader := make([]string, len(header))
	for i, name := range header {
		trimmed := strings.TrimSpace(name)
		outHeader[i] = trimmed
		lower := strings.ToLower(trimmed)
		if phiColumns[lower] {
			blankIdx[i] = true
		}
		if lower == patientIDColumn {
			hashIdx = i
			outHeader[i] = patientHashColumn
		}
	}
	if err := cw.Write(outHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for rowNum := 2; ; rowNum++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read row %d: %w", rowNum, err)
		}

		out := make([]string, len(record))
		for i, cell := range record {
			switch {
			case blankIdx[i]:
				out[i] = ""
			case i == hashIdx:
				out[i] = HashPatientID(cell)
			default:
				out[i] = cell
			}
		}
		if err := cw.Write(out); err != nil {
			return fmt.Errorf("write row %d: %w", rowNum, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

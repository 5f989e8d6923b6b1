package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JoshPattman/resumestudio/datamodels"
)

// WriteCoverageCSV writes one row per qualification stating whether it is
// mentioned (case-insensitively) in the resume.
func WriteCoverageCSV(w io.Writer, quals datamodels.Qualifications, resume string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Category", "Qualification", "Covered"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	lower := strings.ToLower(resume)
	rows := func(category string, items []string) error {
		for _, q := range items {
			covered := strings.Contains(lower, strings.ToLower(strings.TrimSpace(q)))
			if err := cw.Write([]string{category, q, strconv.FormatBool(covered)}); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		return nil
	}
	if err := rows("required", quals.Required); err != nil {
		return err
	}
	if err := rows("preferred", quals.Preferred); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

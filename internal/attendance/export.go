package attendance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/facemark/facemark/internal/database"
)

// ExportSessionCSV writes a session's attendance as CSV, one row per record.
func (s *Service) ExportSessionCSV(ctx context.Context, sessionID string, students database.StudentReader, w io.Writer) error {
	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to list session records: %w", err)
	}

	cw := csv.NewWriter(w)
	header := []string{"roll_number", "name", "status", "check_in_at", "method", "confidence", "liveness_verified"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		roll, name := "", ""
		if student, err := students.GetStudent(ctx, r.StudentID); err == nil {
			roll, name = student.RollNumber, student.FullName
		}

		checkIn := ""
		if r.CheckInAt != nil {
			checkIn = r.CheckInAt.Format(time.RFC3339)
		}
		confidence := ""
		if r.Confidence > 0 {
			confidence = strconv.FormatFloat(r.Confidence, 'f', 4, 64)
		}

		row := []string{
			roll,
			name,
			string(r.Status),
			checkIn,
			string(r.Method),
			confidence,
			strconv.FormatBool(r.LivenessVerified),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

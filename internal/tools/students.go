package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// StudentLookup fetches a student record from the consolidated CSV table by
// roll number. An absent roll number is an empty result, not an error;
// a missing table file is a true error.
type StudentLookup struct {
	csvPath string
}

// NewStudentLookup creates the lookup tool over the table at csvPath.
func NewStudentLookup(csvPath string) *StudentLookup {
	return &StudentLookup{csvPath: csvPath}
}

func (s *StudentLookup) Name() string { return "get_student_details" }
func (s *StudentLookup) Description() string {
	return "Fetch all details of a student from the consolidated student table by roll number, " +
		"including personal details, course enrollments, faculty assignments, and schedule. " +
		"Returns an empty object if no student matches."
}
func (s *StudentLookup) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"roll_no": {"type": "integer", "description": "The student's roll number, e.g. 21051174"}
		},
		"required": ["roll_no"]
	}`)
}

const rollNumberColumn = "Roll_Number"

func (s *StudentLookup) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var params struct {
		RollNo int64 `json:"roll_no"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}

	f, err := os.Open(s.csvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("student table %q not found", s.csvPath)
		}
		return "", fmt.Errorf("open student table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return "", fmt.Errorf("read table header: %w", err)
	}

	rollCol := -1
	for i, name := range header {
		if name == rollNumberColumn {
			rollCol = i
			break
		}
	}
	if rollCol < 0 {
		return "", fmt.Errorf("student table has no %s column", rollNumberColumn)
	}

	want := strconv.FormatInt(params.RollNo, 10)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read student table: %w", err)
		}
		if rollCol >= len(row) || row[rollCol] != want {
			continue
		}

		record := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			} else {
				record[name] = ""
			}
		}
		out, err := json.Marshal(record)
		if err != nil {
			return "", fmt.Errorf("marshal record: %w", err)
		}
		return string(out), nil
	}

	// Not found: an empty structured result, distinguished from errors.
	return "{}", nil
}

// Package labels reads and writes YOLO-style label files: one detection per
// line, "<class_id> <center_x> <center_y> <width> <height>".
package labels

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/safevision/safevision/pkg/types"
)

// LabelFileExt is the extension of label files.
const LabelFileExt = ".txt"

// FormatFloat renders a coordinate in Go's shortest round-trippable form.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Format renders one detection as a label line without the trailing newline.
func Format(d types.Detection) string {
	return strconv.Itoa(d.ClassID) + " " +
		FormatFloat(d.Box.CX) + " " +
		FormatFloat(d.Box.CY) + " " +
		FormatFloat(d.Box.W) + " " +
		FormatFloat(d.Box.H)
}

// Validate checks that a detection can be written without producing a
// corrupt line. Coordinates outside [0,1] are allowed.
func Validate(d types.Detection) error {
	if d.ClassID < 0 {
		return fmt.Errorf("%w: negative class id %d", types.ErrInvalidInput, d.ClassID)
	}
	for _, v := range [...]float64{d.Box.CX, d.Box.CY, d.Box.W, d.Box.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in detection of class %d", types.ErrInvalidInput, d.ClassID)
		}
	}
	return nil
}

// ValidateSet validates every detection, reporting the first bad index.
func ValidateSet(set types.DetectionSet) error {
	for i, d := range set {
		if err := Validate(d); err != nil {
			return fmt.Errorf("detection %d: %w", i, err)
		}
	}
	return nil
}

// Write serializes the set in order. It validates the whole set first so
// nothing is written for a malformed set.
func Write(w io.Writer, set types.DetectionSet) error {
	if err := ValidateSet(set); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, d := range set {
		if _, err := bw.WriteString(Format(d)); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FromTuple converts a raw engine row [class, cx, cy, w, h] or
// [class, cx, cy, w, h, confidence] into a Detection.
func FromTuple(row []float64) (types.Detection, error) {
	if len(row) != 5 && len(row) != 6 {
		return types.Detection{}, fmt.Errorf("%w: detection tuple has %d fields, want 5 or 6", types.ErrInvalidInput, len(row))
	}
	for i, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.Detection{}, fmt.Errorf("%w: field %d is not a finite number", types.ErrInvalidInput, i)
		}
	}
	if row[0] < 0 || row[0] != math.Trunc(row[0]) || row[0] > math.MaxInt32 {
		return types.Detection{}, fmt.Errorf("%w: class %v is not a non-negative integer", types.ErrInvalidInput, row[0])
	}
	d := types.Detection{
		ClassID: int(row[0]),
		Box:     types.Box{CX: row[1], CY: row[2], W: row[3], H: row[4]},
	}
	if len(row) == 6 {
		d.Confidence = row[5]
	}
	return d, nil
}

// FromTuples converts a slice of raw rows, failing on the first malformed one.
func FromTuples(rows [][]float64) (types.DetectionSet, error) {
	set := make(types.DetectionSet, 0, len(rows))
	for i, row := range rows {
		d, err := FromTuple(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		set = append(set, d)
	}
	return set, nil
}

// ParseLine parses a single label line.
func ParseLine(line string) (types.Detection, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return types.Detection{}, fmt.Errorf("%w: %d fields, want 5", types.ErrInvalidInput, len(fields))
	}
	cls, err := strconv.Atoi(fields[0])
	if err != nil || cls < 0 {
		return types.Detection{}, fmt.Errorf("%w: bad class id %q", types.ErrInvalidInput, fields[0])
	}
	var v [4]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return types.Detection{}, fmt.Errorf("%w: bad coordinate %q", types.ErrInvalidInput, fields[i+1])
		}
	}
	return types.Detection{
		ClassID: cls,
		Box:     types.Box{CX: v[0], CY: v[1], W: v[2], H: v[3]},
	}, nil
}

// Parse reads a label file. Blank lines are skipped.
func Parse(r io.Reader) (types.DetectionSet, error) {
	set := types.DetectionSet{}
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		d, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		set = append(set, d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	return set, nil
}

// ReadFile parses the label file at path.
func ReadFile(path string) (types.DetectionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	defer f.Close()
	return Parse(f)
}

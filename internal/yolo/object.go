package yolo

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/ironsheep/muret2yolo/internal/bbox"
	"github.com/ironsheep/muret2yolo/internal/errs"
)

// Object is one row of a label file: a class index and a YOLO box.
type Object struct {
	Class int
	Box   bbox.Box
}

func (o Object) String() string {
	return strconv.Itoa(o.Class) + " " + o.Box.String()
}

// Sample is one image of the output dataset with its objects.
type Sample struct {
	// Name is the base name of the image and label files.
	Name string
	// Source is the URL of the MuRET image the sample comes from.
	Source  string
	Image   image.Image
	Objects []Object
}

// Labels renders the label file: one "<class> <cx> <cy> <w> <h>" line per object.
func (s *Sample) Labels() string {
	var b strings.Builder
	for _, o := range s.Objects {
		b.WriteString(o.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseLabels reads a label file back into objects.
func ParseLabels(r io.Reader) ([]Object, error) {
	var objects []Object
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 5 {
			return nil, errs.Validationf("line %d: expected 5 fields, got %d", line, len(fields))
		}
		class, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errs.Validationf("line %d: invalid class %q", line, fields[0])
		}
		var v [4]float64
		for i := range v {
			if v[i], err = strconv.ParseFloat(fields[i+1], 64); err != nil {
				return nil, errs.Validationf("line %d: invalid coordinate %q", line, fields[i+1])
			}
		}
		objects = append(objects, Object{
			Class: class,
			Box:   bbox.Box{A: v[0], B: v[1], C: v[2], D: v[3], Format: bbox.YOLO},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return objects, nil
}

// Package dictionary provides the label registry that maps symbolic labels to
// stable integer class indices.
//
// Indices are dense, start at 0 and are assigned in first-seen order. A
// Dictionary only grows: there is no removal or reordering, so an index handed
// out once stays valid for the lifetime of the Dictionary.
//
// # Thread Safety
//
// Dictionary is safe for concurrent use. Lookups share a read lock; Add and
// Register serialize on the write lock.
package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/logging"
)

// Dictionary is an ordered list of unique labels plus the inverse label→index map.
type Dictionary struct {
	mu       sync.RWMutex
	labels   []string
	inverted map[string]int
}

// New creates a dictionary holding the given labels in order. Duplicates keep
// the index of their first occurrence.
func New(labels ...string) *Dictionary {
	d := &Dictionary{
		labels:   make([]string, 0, len(labels)),
		inverted: make(map[string]int, len(labels)),
	}
	for _, l := range labels {
		d.add(l)
	}
	return d
}

// FromJSON reads the array of labels stored under root in the JSON document at path.
//
// The same document may hold several dictionaries under different root keys,
// which is how a MuRET package's dictionary.json is laid out.
func FromJSON(path, root string) (*Dictionary, error) {
	logging.Debugf("Reading dictionary from %s with root element %s", path, root)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Configf("dictionary file %s is not a JSON object: %v", path, err)
	}
	return FromDocument(doc, root)
}

// FromDocument builds a dictionary from an already decoded JSON object.
func FromDocument(doc map[string]json.RawMessage, root string) (*Dictionary, error) {
	raw, ok := doc[root]
	if !ok {
		return nil, errs.Configf("no root element named %q", root)
	}
	var labels []string
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, errs.Configf("root element %q is not an array of labels: %v", root, err)
	}
	return New(labels...), nil
}

// Add appends label with the next index unless it is already present.
func (d *Dictionary) Add(label string) {
	d.mu.Lock()
	d.add(label)
	d.mu.Unlock()
}

// Register adds label if absent and returns its index. added is true only for
// the call that actually inserted it, even under concurrent registration.
func (d *Dictionary) Register(label string) (index int, added bool) {
	d.mu.RLock()
	index, ok := d.inverted[label]
	d.mu.RUnlock()
	if ok {
		return index, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if index, ok := d.inverted[label]; ok {
		return index, false
	}
	return d.add(label), true
}

func (d *Dictionary) add(label string) int {
	if i, ok := d.inverted[label]; ok {
		return i
	}
	d.labels = append(d.labels, label)
	i := len(d.labels) - 1
	d.inverted[label] = i
	return i
}

// Contains reports whether label is registered.
func (d *Dictionary) Contains(label string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.inverted[label]
	return ok
}

// IndexOf returns the index of label, or an error wrapping errs.ErrNotFound.
func (d *Dictionary) IndexOf(label string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.inverted[label]
	if !ok {
		return 0, fmt.Errorf("label %q not found in dictionary: %w", label, errs.ErrNotFound)
	}
	return i, nil
}

// Label returns the label stored at index.
//
// Indices below zero or at/after Size wrap errs.ErrOutOfRange; an empty slot
// wraps errs.ErrNotFound.
func (d *Dictionary) Label(index int) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if index < 0 {
		return "", fmt.Errorf("negative index %d: %w", index, errs.ErrOutOfRange)
	}
	if index >= len(d.labels) {
		return "", fmt.Errorf("index %d >= %d: %w", index, len(d.labels), errs.ErrOutOfRange)
	}
	l := d.labels[index]
	if l == "" {
		return "", fmt.Errorf("index %d not found in dictionary: %w", index, errs.ErrNotFound)
	}
	return l, nil
}

// Size returns the number of labels.
func (d *Dictionary) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.labels)
}

// Labels returns a copy of the labels in index order.
func (d *Dictionary) Labels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.labels))
	copy(out, d.labels)
	return out
}

// IndexToLabel returns the index→label export.
func (d *Dictionary) IndexToLabel() map[int]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[int]string, len(d.labels))
	for i, l := range d.labels {
		out[i] = l
	}
	return out
}

// LabelToIndex returns the label→index export.
func (d *Dictionary) LabelToIndex() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.inverted))
	for l, i := range d.inverted {
		out[l] = i
	}
	return out
}

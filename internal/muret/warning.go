package muret

import "fmt"

// LabelKind names the dictionary a label belongs to.
type LabelKind string

const (
	RegionType         LabelKind = "region type"
	AgnosticSymbolType LabelKind = "agnostic symbol type"
	PositionInStaff    LabelKind = "position in staff"
)

// UnknownLabelWarning reports a label that was missing from its dictionary.
// By the time the warning exists the label has been registered.
type UnknownLabelWarning struct {
	Kind    LabelKind
	Label   string
	Index   int
	File    string
	Context string
}

func (w *UnknownLabelWarning) Error() string {
	return fmt.Sprintf("%s %q not found in dictionary (%s, %s); registered with index %d",
		w.Kind, w.Label, w.File, w.Context, w.Index)
}

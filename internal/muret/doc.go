// Package muret reads MuRET training packages into an in-memory object graph.
//
// A package is a folder holding a dictionary.json and a files/ tree of
// per-image JSON records:
//
//	<package>/
//	  dictionary.json          region_dictionary, agnostic_symbol_types,
//	                           agnostic_positions_in_staff
//	  files/**/<name>.json     {id, url, filename, pages: [...]}
//
// Each record becomes one Image owning its Pages, each Page its Regions and
// each Region its Symbols. The graph is a plain tree built once by Load and
// read-only afterwards.
//
// # Loading
//
// Load runs two phases on a bounded worker pool. Discovery parses every JSON
// file independently; the parsed files are then sorted by (relative folder,
// base name), so the final order never depends on completion order. Graph
// construction turns each file into an Image and checks every label against
// the package dictionaries.
//
// # Failure Policy
//
// A file that cannot be parsed, or lacks id, url or filename, is skipped and
// reported in Package.Failures; the rest of the batch loads normally. Load
// fails only when the package is empty or no file survives.
//
// A label missing from its dictionary is registered (the dictionary grows)
// and reported as an UnknownLabelWarning in Package.Warnings. With
// LoadOptions.StrictLabels set, Load instead returns the warnings as an error
// after the full pass, so every new label is already registered when the
// caller decides to abort.
package muret

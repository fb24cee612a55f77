package projector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// UnknownLabelPrefix prefixes the label of a class id missing from the table.
const UnknownLabelPrefix = "UNKNOWN:"

// Label is one entry of a LabelTable.
type Label struct {
	// DisplayName is the human-readable class name.
	DisplayName string `json:"displayName" yaml:"displayName"`
}

// LabelTable maps a class id to its label. Read-only once built, so it can be
// shared between goroutines.
type LabelTable map[int]Label

// NewLabelTable builds a table from names indexed from first.
//
// Arguments:
//   - first: The class id of names[0].
//   - names: Display names in class id order. Empty names are skipped.
//
// Returns:
//   - LabelTable: The table.
func NewLabelTable(first int, names ...string) LabelTable {
	t := make(LabelTable, len(names))
	for i, n := range names {
		if n == "" {
			continue
		}
		t[first+i] = Label{DisplayName: n}
	}
	return t
}

// Name returns the display name of a class id, or "UNKNOWN:<id>".
func (t LabelTable) Name(classID int) string {
	if l, ok := t[classID]; ok && l.DisplayName != "" {
		return l.DisplayName
	}
	return UnknownLabelPrefix + strconv.Itoa(classID)
}

// Lookup returns the class id with the given display name. Names compare
// case-insensitively; when several ids share a name the lowest wins.
func (t LabelTable) Lookup(name string) (int, bool) {
	for _, id := range t.IDs() {
		if strings.EqualFold(t[id].DisplayName, name) {
			return id, true
		}
	}
	return 0, false
}

// IDs returns the class ids in ascending order.
func (t LabelTable) IDs() []int {
	ids := make([]int, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// LoadLabels reads a label table from a file.
//
// The format follows the extension:
//   - .json: an object keyed by class id, {"1": {"displayName": "person"}}.
//   - .yaml, .yml: the same structure in YAML.
//   - anything else: one name per line, the first line being class id 0.
//
// Arguments:
//   - path: The file to read.
//
// Returns:
//   - LabelTable: The table.
//   - error: An error if the file cannot be read or parsed.
func LoadLabels(path string) (LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open labels")
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseLabelsJSON(f)
	case ".yaml", ".yml":
		return ParseLabelsYAML(f)
	default:
		return ParseLabelsText(f, 0)
	}
}

// ParseLabelsJSON decodes a JSON object keyed by class id.
func ParseLabelsJSON(r io.Reader) (LabelTable, error) {
	var raw map[string]Label
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "unable to decode labels")
	}
	return fromKeyed(raw)
}

// ParseLabelsYAML decodes a YAML mapping keyed by class id.
func ParseLabelsYAML(r io.Reader) (LabelTable, error) {
	var raw map[string]Label
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "unable to decode labels")
	}
	return fromKeyed(raw)
}

func fromKeyed(raw map[string]Label) (LabelTable, error) {
	t := make(LabelTable, len(raw))
	for k, l := range raw {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("label key %q is not a class id: %w", k, err)
		}
		t[id] = l
	}
	return t, nil
}

// ParseLabelsText reads one display name per line. Line n is class id
// first+n. Blank lines keep their id unassigned.
func ParseLabelsText(r io.Reader, first int) (LabelTable, error) {
	t := make(LabelTable)
	scanner := bufio.NewScanner(r)
	for id := first; scanner.Scan(); id++ {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			t[id] = Label{DisplayName: name}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read labels")
	}
	return t, nil
}

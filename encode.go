package fiscal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// jsonObjectWriter helps construct a JSON object with a specific field order.
// Its zero value is ready to use.
type jsonObjectWriter struct {
	bytes.Buffer
	err error
}

// Append adds a new key-value pair to the JSON object. The value is
// marshaled with `json.Marshal`.
func (w *jsonObjectWriter) Append(key string, value interface{}) *jsonObjectWriter {
	if w.err != nil {
		return w
	}
	valBytes, err := json.Marshal(value)
	if err != nil {
		w.err = fmt.Errorf("failed to marshal value for key %q: %w", key, err)
		return w
	}
	w.WriteString(fmt.Sprintf("%q:", key))
	w.Write(valBytes)
	w.WriteString(",")
	return w
}

// Optional appends a key-value pair only if the value is not its type's zero
// value, omitting empty or default fields from the output.
func (w *jsonObjectWriter) Optional(key string, value interface{}) *jsonObjectWriter {
	if w.err != nil {
		return w
	}
	v := reflect.ValueOf(value)
	if !v.IsValid() || v.IsZero() {
		return w
	}
	return w.Append(key, value)
}

// MarshalJSON finalizes the object, wraps the content in braces, and returns
// the complete JSON byte slice. It satisfies the `json.Marshaler` interface.
func (w *jsonObjectWriter) MarshalJSON() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	content := bytes.TrimSuffix(w.Bytes(), []byte(","))
	final := make([]byte, 0, len(content)+2)
	final = append(final, '{')
	final = append(final, content...)
	final = append(final, '}')
	return final, nil
}

// InputDigest identifies one input file a run consumed.
type InputDigest struct {
	File   string `json:"file"`
	Source string `json:"source"`
	SHA256 string `json:"sha256"`
}

// Artifact describes one written file in the manifest.
type Artifact struct {
	Name  string   `json:"name"` // path relative to the output directory
	Rows  int      `json:"rows"`
	Bytes int64    `json:"bytes"`
	Dims  []string `json:"dims,omitempty"` // view dimension columns
}

// Manifest identifies one completed run and inventories its artifacts. It is
// written last, so its presence marks the output set as complete. The run id
// and timestamps differ between runs; everything else is deterministic.
type Manifest struct {
	Run      uuid.UUID `json:"run"`
	Version  string    `json:"version"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Inputs    []InputDigest `json:"inputs,omitempty"`
	Artifacts []Artifact    `json:"artifacts,omitempty"`

	Entities  int `json:"entities"`
	Facts     int `json:"facts"`
	Conflicts int `json:"conflicts,omitempty"`
	Aliases   int `json:"aliases,omitempty"`
}

// View returns the artifact of the named view, or nil.
func (m *Manifest) View(name string) *Artifact {
	want := "views/" + name + ".parquet"
	for i := range m.Artifacts {
		if m.Artifacts[i].Name == want {
			return &m.Artifacts[i]
		}
	}
	return nil
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	w := &jsonObjectWriter{}
	w.Append("run", m.Run).
		Append("version", m.Version).
		Append("started", m.Started).
		Append("finished", m.Finished).
		Optional("inputs", m.Inputs).
		Optional("artifacts", m.Artifacts).
		Append("entities", m.Entities).
		Append("facts", m.Facts).
		Optional("conflicts", m.Conflicts).
		Optional("aliases", m.Aliases)
	return w.MarshalJSON()
}

// EncodeManifest writes the manifest as indented JSON.
func EncodeManifest(w io.Writer, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// DecodeManifest reads a manifest written by EncodeManifest.
func DecodeManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	err := json.NewDecoder(r).Decode(&m)
	return m, err
}

// ReadManifest loads the manifest of a completed run from its output
// directory.
func ReadManifest(dir string) (Manifest, error) {
	f, err := os.Open(manifestPath(dir))
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()
	return DecodeManifest(f)
}

// DigestFile returns the hex SHA-256 of a file's content.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

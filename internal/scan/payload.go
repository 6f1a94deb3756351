// Package scan parses decoded QR payloads. Labels are printed either as a
// JSON object or as newline-delimited "key: value" text; both produce the
// same typed Payload.
package scan

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Type is the kind of entity a QR label identifies.
type Type string

const (
	TypeJob       Type = "JOB"
	TypeOperation Type = "OPERATION"
	TypeMachine   Type = "MACHINE"
	TypeEmployee  Type = "EMPLOYEE"
)

var (
	ErrEmptyPayload      = errors.New("empty scan payload")
	ErrUnknownType       = errors.New("unknown qr type")
	ErrMissingIdentifier = errors.New("qr payload has no identifier")
)

// Payload is a decoded, typed QR label.
type Payload struct {
	Type Type
	ID   string
	// Fields holds every key of the label, lower-cased, including the
	// identifier. JOB labels commonly carry serialno and opernum too.
	Fields map[string]string
}

// Field returns a field by case-insensitive key.
func (p Payload) Field(key string) string {
	return p.Fields[strings.ToLower(key)]
}

var typeAliases = map[string]Type{
	"job":       TypeJob,
	"operation": TypeOperation,
	"oper":      TypeOperation,
	"op":        TypeOperation,
	"machine":   TypeMachine,
	"employee":  TypeEmployee,
	"emp":       TypeEmployee,
}

// identifierKeys lists, per type, the keys that may carry the identifier.
var identifierKeys = map[Type][]string{
	TypeJob:       {"job", "jobnum", "jobnumber"},
	TypeOperation: {"opernum", "operation", "operationnumber", "oper"},
	TypeMachine:   {"machinenumber", "machine", "machinenum"},
	TypeEmployee:  {"empnum", "employee", "employeecode", "emp"},
}

// ParseType resolves a qrType value.
func ParseType(raw string) (Type, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", errors.Wrapf(ErrUnknownType, "%q", raw)
	}
	return t, nil
}

// Parse decodes QR text. JSON objects are tried first; anything else is
// read as "key: value" lines.
func Parse(text string) (Payload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Payload{}, ErrEmptyPayload
	}

	fields, ok := parseJSON(text)
	if !ok {
		fields = parseLines(text)
	}
	if len(fields) == 0 {
		return Payload{}, ErrEmptyPayload
	}

	rawType, ok := fields["qrtype"]
	if !ok {
		rawType = fields["type"]
	}
	typ, err := ParseType(rawType)
	if err != nil {
		return Payload{}, err
	}

	for _, key := range identifierKeys[typ] {
		if id := strings.TrimSpace(fields[key]); id != "" {
			return Payload{Type: typ, ID: id, Fields: fields}, nil
		}
	}
	return Payload{}, errors.Wrapf(ErrMissingIdentifier, "type %s", typ)
}

// parseJSON reads a flat JSON object in document order. Keys are folded
// to lower case and the first occurrence of a folded key wins.
func parseJSON(text string) (map[string]string, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}
	fields := make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		k, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		key := strings.ToLower(k)
		if _, dup := fields[key]; dup {
			continue
		}
		switch val := v.(type) {
		case string:
			fields[key] = strings.TrimSpace(val)
		case json.Number:
			fields[key] = val.String()
		case bool:
			fields[key] = strconv.FormatBool(val)
		}
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, false
	}
	return fields, true
}

func parseLines(text string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.Trim(key, " \t{}\","))
		value = strings.Trim(value, " \t{}\",")
		if key == "" {
			continue
		}
		// Printed labels use spaces in keys ("Oper Num: 10").
		key = strings.ReplaceAll(key, " ", "")
		if _, dup := fields[key]; dup {
			continue
		}
		fields[key] = value
	}
	return fields
}

package llmjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ListItem is one entry of a model generated title list.
type ListItem struct {
	Title       string     `json:"title"`
	Type        string     `json:"type"`
	Platform    FlexString `json:"platform"`
	ReleaseDate FlexString `json:"release_date"`
	Genre       FlexString `json:"genre"`
	Rating      FlexFloat  `json:"rating"`
	Description string     `json:"description"`
}

// Record is a single title extracted by a model from search snippets.
type Record struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ReleaseDate FlexString `json:"release_date"`
	Genre       FlexString `json:"genre"`
	Cast        FlexList   `json:"cast"`
	Director    string     `json:"director"`
	Platform    FlexString `json:"platform"`
	Rating      FlexFloat  `json:"rating"`
}

// ParseList decodes the first JSON array in text. Entries without a title are
// dropped and the remaining fields are trimmed. Type is normalised to "movie"
// or "tv" and left empty when the model gave anything else. An empty array is valid and
// yields no items and no error.
func ParseList(text string) ([]ListItem, error) {
	raw, ok := ExtractArray(text)
	if !ok {
		return nil, ErrNoJSON
	}
	items, err := decode[[]ListItem](raw)
	if err != nil {
		return nil, err
	}
	out := make([]ListItem, 0, len(items))
	for _, item := range items {
		item.Title = strings.TrimSpace(item.Title)
		if item.Title == "" {
			continue
		}
		item.Type = normalizeType(item.Type)
		item.Platform = FlexString(cleanNA(string(item.Platform)))
		item.ReleaseDate = FlexString(cleanNA(string(item.ReleaseDate)))
		item.Description = cleanNA(item.Description)
		out = append(out, item)
	}
	if len(items) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("%w: no entry has a title", ErrInvalid)
	}
	return out, nil
}

// ParseRecord decodes the first JSON object in text into a Record. A record
// without a title is invalid.
func ParseRecord(text string) (Record, error) {
	raw, ok := ExtractObject(text)
	if !ok {
		return Record{}, ErrNoJSON
	}
	rec, err := decode[Record](raw)
	if err != nil {
		return Record{}, err
	}
	rec.Title = strings.TrimSpace(rec.Title)
	if rec.Title == "" {
		return Record{}, fmt.Errorf("%w: record has no title", ErrInvalid)
	}
	rec.Description = cleanNA(rec.Description)
	rec.ReleaseDate = FlexString(cleanNA(string(rec.ReleaseDate)))
	rec.Director = cleanNA(rec.Director)
	rec.Platform = FlexString(cleanNA(string(rec.Platform)))
	return rec, nil
}

func normalizeType(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "movie", "film", "feature film":
		return "movie"
	case "tv", "series", "show", "tv series", "tv show", "web series", "ott series":
		return "tv"
	}
	return ""
}

// FlexFloat accepts a number, a numeric string such as "7.8" or "7.8/10", or
// null. Unparseable values decode as zero.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexFloat(parseRating(s))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

func parseRating(s string) float64 {
	s = strings.TrimSpace(s)
	scale := 0.0
	if slash := strings.IndexByte(s, '/'); slash >= 0 {
		scale, _ = strconv.ParseFloat(strings.TrimSpace(s[slash+1:]), 64)
		s = strings.TrimSpace(s[:slash])
	}
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if scale > 0 && scale != 10 {
		v = v * 10 / scale
	}
	return v
}

// FlexString accepts a string, a number or an array of those, which is
// joined with ", ". Other JSON values decode as empty.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	list, err := decodeStrings(data)
	if err != nil {
		return err
	}
	*s = FlexString(strings.Join(list, ", "))
	return nil
}

// FlexList accepts an array of scalars or a single comma separated string.
type FlexList []string

func (l *FlexList) UnmarshalJSON(data []byte) error {
	list, err := decodeStrings(data)
	if err != nil {
		return err
	}
	*l = list
	return nil
}

func decodeStrings(data []byte) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var raw []string
	switch data[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, err
		}
		for _, elem := range elems {
			v, err := scalarString(elem)
			if err != nil {
				return nil, err
			}
			raw = append(raw, v)
		}
	case '"':
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, err
		}
		raw = strings.Split(single, ",")
	default:
		v, err := scalarString(data)
		if err != nil {
			return nil, err
		}
		raw = []string{v}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = cleanNA(v); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// scalarString renders a JSON string or number as text. Booleans, objects and
// null become "".
func scalarString(data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", nil
}

func cleanNA(value string) string {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "n/a", "na", "null", "none", "unknown":
		return ""
	}
	return value
}

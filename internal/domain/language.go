package domain

import "encoding/json"

// Language is one entry of the caption language catalog.
type Language struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	DisplayGlyph string `json:"flag"`
}

// UnmarshalJSON accepts the glyph under either "flag" or "displayGlyph".
func (l *Language) UnmarshalJSON(data []byte) error {
	var raw struct {
		Code         string `json:"code"`
		Name         string `json:"name"`
		Flag         string `json:"flag"`
		DisplayGlyph string `json:"displayGlyph"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Code = raw.Code
	l.Name = raw.Name
	l.DisplayGlyph = raw.Flag
	if l.DisplayGlyph == "" {
		l.DisplayGlyph = raw.DisplayGlyph
	}
	return nil
}

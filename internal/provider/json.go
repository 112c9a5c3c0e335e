package provider

import (
	"errors"
	"strings"
)

// ErrNoJSONBlock is returned when a model reply contains no {...} block.
var ErrNoJSONBlock = errors.New("no JSON object found in model response")

// ExtractJSONBlock locates the first '{' and the last '}' in a model
// reply and returns the substring between them. Models are prompted for
// strict JSON but occasionally wrap it in prose or markdown fences;
// this recovers the object without relying on free-form text.
func ExtractJSONBlock(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", ErrNoJSONBlock
	}
	return s[start : end+1], nil
}

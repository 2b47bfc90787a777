package sirjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ParseError mirrors json.h's JsonError: an offset (here, a 1-based source
// line within the Lines stream) plus a message.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sircc: line %d: %s", e.Line, e.Msg)
}

// Parse decodes a single JSON document (one line of a SIR Lines stream)
// into a Value tree, interning strings through arena. Mirrors json_parse,
// built on encoding/json's token stream instead of a hand-rolled scanner
// so that object member order is preserved (encoding/json's map-based
// Unmarshal would discard it).
func Parse(arena *Arena, input string) (*Value, error) {
	dec := json.NewDecoder(strings.NewReader(input))
	dec.UseNumber()
	v, err := decodeValue(dec, arena)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	if dec.More() {
		return nil, &ParseError{Msg: "trailing data after JSON value"}
	}
	return v, nil
}

func decodeValue(dec *json.Decoder, arena *Arena) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, arena, tok)
}

func decodeToken(dec *json.Decoder, arena *Arena, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return &Value{Kind: KindNull}, nil
	case bool:
		return &Value{Kind: KindBool, Bool: t}, nil
	case json.Number:
		return &Value{Kind: KindNumber, Number: string(t)}, nil
	case string:
		return &Value{Kind: KindString, Str: arena.Intern(t)}, nil
	case json.Delim:
		switch t {
		case '[':
			v := &Value{Kind: KindArray}
			for dec.More() {
				elem, err := decodeValue(dec, arena)
				if err != nil {
					return nil, err
				}
				v.Items = append(v.Items, elem)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return v, nil
		case '{':
			v := &Value{Kind: KindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string")
				}
				val, err := decodeValue(dec, arena)
				if err != nil {
					return nil, err
				}
				v.Members = append(v.Members, Member{Key: arena.Intern(key), Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

// Line is one decoded record of a SIR Lines stream, tagged with its 1-based
// source line number for diagnostic "about" frames (spec.md §9).
type Line struct {
	Num   int
	Value *Value
}

// ReadLines decodes r as newline-delimited JSON, skipping blank lines.
// Mirrors the top-level input loop of lower_hl_and_emit_sir_core, which
// reads one JSON object per line rather than one JSON document for the
// whole file.
func ReadLines(arena *Arena, r io.Reader) ([]Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines []Line
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := Parse(arena, text)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Line = lineNo
				return nil, pe
			}
			return nil, &ParseError{Line: lineNo, Msg: err.Error()}
		}
		lines = append(lines, Line{Num: lineNo, Value: v})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

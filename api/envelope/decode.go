package envelope

import (
	"encoding/json"
	"fmt"
)

// Pagination carries the cursor URLs returned alongside list responses.
// Any of them may be absent.
type Pagination struct {
	FutureURL *string `json:"future_url"`
	NewerURL  *string `json:"newer_url"`
	OlderURL  *string `json:"older_url"`
}

// DecodeSingle decodes a Response array that must hold exactly one element.
func DecodeSingle[T any](p *Payload) (T, error) {
	var result T

	if len(p.elements) != 1 {
		return result, p.shapeError("single", &ShapeError{
			Path:   ResponseKey,
			Reason: fmt.Sprintf("expected exactly one element, got %d", len(p.elements)),
		})
	}

	if err := p.decodeElement(0, p.elements[0], &result); err != nil {
		return result, err
	}
	return result, nil
}

// DecodeMultiple decodes a Response array of zero or more elements together
// with its sibling Pagination object. Both keys are required.
func DecodeMultiple[T any](p *Payload) ([]T, Pagination, error) {
	var pagination Pagination

	rawPagination, ok := p.envelope.fields[PaginationKey]
	if !ok {
		return nil, pagination, p.shapeError("multiple", &ShapeError{Path: PaginationKey, Reason: "missing"})
	}
	if isNull(rawPagination) {
		return nil, pagination, p.shapeError("multiple", &ShapeError{Path: PaginationKey, Reason: "expected an object, got null"})
	}
	if err := json.Unmarshal(rawPagination, &pagination); err != nil {
		return nil, pagination, p.shapeError("multiple", &ShapeError{
			Path:   joinPath(PaginationKey, errorField(err)),
			Reason: "expected an object",
			Err:    err,
		})
	}

	results := make([]T, 0, len(p.elements))
	for i, raw := range p.elements {
		var item T
		if err := p.decodeElement(i, raw, &item); err != nil {
			return nil, pagination, err
		}
		results = append(results, item)
	}

	return results, pagination, nil
}

// Field selects what to decode from one element of a positional response.
type Field struct {
	// Key names the object inside the element to decode. An empty key decodes
	// the whole element, which suits tagged unions whose key varies.
	Key string

	// Into receives the decoded value.
	Into any
}

// Key builds a Field decoding the object stored under key.
func Key(key string, into any) Field {
	return Field{Key: key, Into: into}
}

// Whole builds a Field decoding the entire element.
func Whole(into any) Field {
	return Field{Into: into}
}

// DecodePositional decodes responses that pack heterogeneous named objects as
// successive array elements: element i is decoded according to fields[i].
// Extra trailing elements are ignored.
func DecodePositional(p *Payload, fields ...Field) error {
	if len(p.elements) < len(fields) {
		return p.shapeError("positional", &ShapeError{
			Path:   ResponseKey,
			Reason: fmt.Sprintf("expected at least %d elements, got %d", len(fields), len(p.elements)),
		})
	}

	for i, field := range fields {
		if field.Key == "" {
			if err := p.decodeElement(i, p.elements[i], field.Into); err != nil {
				return err
			}
			continue
		}

		var element map[string]json.RawMessage
		if err := json.Unmarshal(p.elements[i], &element); err != nil {
			return p.shapeError("positional", &ShapeError{
				Path:   fmt.Sprintf("%s[%d]", ResponseKey, i),
				Reason: "expected an object",
				Err:    err,
			})
		}

		raw, ok := element[field.Key]
		if !ok {
			return p.shapeError("positional", &ShapeError{
				Path:   fmt.Sprintf("%s[%d].%s", ResponseKey, i, field.Key),
				Reason: "missing",
			})
		}

		if err := json.Unmarshal(raw, field.Into); err != nil {
			return p.shapeError("positional", &ShapeError{
				Path:   joinPath(fmt.Sprintf("%s[%d].%s", ResponseKey, i, field.Key), errorField(err)),
				Reason: "cannot decode element",
				Err:    err,
			})
		}
	}

	return nil
}

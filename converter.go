package riptide

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"

	"gopkg.in/yaml.v3"
)

// MessageConverter reads response bodies into Go values and writes request
// bodies from them for the media types it supports.
type MessageConverter interface {
	CanRead(t reflect.Type, mediaType MediaType) bool
	Read(r io.Reader, mediaType MediaType, target any) error
	CanWrite(t reflect.Type, mediaType MediaType) bool
	Write(w io.Writer, mediaType MediaType, value any) error
}

// MessageReader converts a response body into target, which must be a
// non-nil pointer. Failures are *ConversionError.
type MessageReader interface {
	Read(resp *http.Response, target any) error
}

// Converters is an ordered list of converters; the first one able to handle
// a type and media type pair wins.
type Converters []MessageConverter

// DefaultConverters returns text, JSON and YAML converters in that order.
func DefaultConverters() Converters {
	return Converters{TextConverter{}, JSONConverter{}, YAMLConverter{}}
}

var (
	stringType = reflect.TypeOf("")
	bytesType  = reflect.TypeOf([]byte(nil))
	readerType = reflect.TypeOf((*io.Reader)(nil)).Elem()
)

// Read implements MessageReader. A response without a usable Content-Type
// is read as application/octet-stream. An empty body leaves target at its
// zero value.
func (c Converters) Read(resp *http.Response, target any) error {
	mediaType := ByContentType().Attribute(resp)
	if mediaType.IsNone() {
		mediaType = ApplicationOctetStream
	}

	ptr := reflect.TypeOf(target)
	if ptr == nil || ptr.Kind() != reflect.Pointer || reflect.ValueOf(target).IsNil() {
		return &ConversionError{
			Type:      fmt.Sprintf("%T", target),
			MediaType: mediaType,
			Cause:     fmt.Errorf("target must be a non-nil pointer"),
		}
	}
	t := ptr.Elem()

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil
	}
	body := bufio.NewReader(resp.Body)
	if _, err := body.Peek(1); errors.Is(err, io.EOF) {
		return nil
	}

	for _, converter := range c {
		if !converter.CanRead(t, mediaType) {
			continue
		}
		if err := converter.Read(body, mediaType, target); err != nil {
			return &ConversionError{Type: t.String(), MediaType: mediaType, Cause: err}
		}
		return nil
	}
	return &ConversionError{Type: t.String(), MediaType: mediaType}
}

// Write encodes value as mediaType. When mediaType is MediaTypeNone it
// defaults to text/plain for strings and byte slices and to
// application/json otherwise. The chosen media type is returned.
func (c Converters) Write(mediaType MediaType, value any) ([]byte, MediaType, error) {
	t := reflect.TypeOf(value)
	if mediaType.IsNone() {
		if t == stringType || t == bytesType {
			mediaType = TextPlain.WithParam("charset", "utf-8")
		} else {
			mediaType = ApplicationJSON
		}
	}

	for _, converter := range c {
		if !converter.CanWrite(t, mediaType) {
			continue
		}
		var buf bytes.Buffer
		if err := converter.Write(&buf, mediaType, value); err != nil {
			return nil, mediaType, &ConversionError{Type: typeName(t), MediaType: mediaType, Cause: err}
		}
		return buf.Bytes(), mediaType, nil
	}
	return nil, mediaType, &ConversionError{Type: typeName(t), MediaType: mediaType}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func isJSON(mediaType MediaType) bool {
	return mediaType.Subtype == "json" || mediaType.Suffix() == "json"
}

func isYAML(mediaType MediaType) bool {
	switch mediaType.Subtype {
	case "yaml", "x-yaml":
		return true
	}
	return mediaType.Suffix() == "yaml"
}

// JSONConverter handles application/json and any "+json" media type.
type JSONConverter struct{}

func (JSONConverter) CanRead(_ reflect.Type, mediaType MediaType) bool {
	return isJSON(mediaType)
}

func (JSONConverter) Read(r io.Reader, _ MediaType, target any) error {
	return json.NewDecoder(r).Decode(target)
}

func (JSONConverter) CanWrite(_ reflect.Type, mediaType MediaType) bool {
	return isJSON(mediaType)
}

func (JSONConverter) Write(w io.Writer, _ MediaType, value any) error {
	return json.NewEncoder(w).Encode(value)
}

// YAMLConverter handles application/yaml, application/x-yaml, text/yaml
// and "+yaml" media types.
type YAMLConverter struct{}

func (YAMLConverter) CanRead(_ reflect.Type, mediaType MediaType) bool {
	return isYAML(mediaType)
}

func (YAMLConverter) Read(r io.Reader, _ MediaType, target any) error {
	return yaml.NewDecoder(r).Decode(target)
}

func (YAMLConverter) CanWrite(_ reflect.Type, mediaType MediaType) bool {
	return isYAML(mediaType)
}

func (YAMLConverter) Write(w io.Writer, _ MediaType, value any) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(value); err != nil {
		return err
	}
	return enc.Close()
}

// TextConverter reads any body into a string or []byte and writes strings,
// byte slices and readers verbatim.
type TextConverter struct{}

func (TextConverter) CanRead(t reflect.Type, _ MediaType) bool {
	return t == stringType || t == bytesType
}

func (TextConverter) Read(r io.Reader, _ MediaType, target any) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	switch v := target.(type) {
	case *string:
		*v = string(body)
	case *[]byte:
		*v = body
	default:
		return fmt.Errorf("unsupported target %T", target)
	}
	return nil
}

func (TextConverter) CanWrite(t reflect.Type, _ MediaType) bool {
	return t == stringType || t == bytesType || (t != nil && t.Implements(readerType))
}

func (TextConverter) Write(w io.Writer, _ MediaType, value any) error {
	var err error
	switch v := value.(type) {
	case string:
		_, err = io.WriteString(w, v)
	case []byte:
		_, err = w.Write(v)
	case io.Reader:
		_, err = io.Copy(w, v)
	default:
		err = fmt.Errorf("unsupported value %T", value)
	}
	return err
}

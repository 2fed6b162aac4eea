package mongo

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/extsession/core/session"
)

// document is the stored form of a session.
type document struct {
	ID        string            `bson:"_id"`
	Created   time.Time         `bson:"created"`
	Accessed  time.Time         `bson:"accessed"`
	Interval  int64             `bson:"interval"`
	ExpireAt  *time.Time        `bson:"expireAt,omitempty"`
	Principal string            `bson:"principal,omitempty"`
	Attrs     map[string][]byte `bson:"attrs,omitempty"`
}

var (
	nameEscaper   = strings.NewReplacer("%", "%25", ".", "%2E", "$", "%24")
	nameUnescaper = strings.NewReplacer("%2E", ".", "%24", "$", "%25", "%")
)

// fieldName makes an attribute name safe for use as a document key.
func fieldName(name string) string {
	return nameEscaper.Replace(name)
}

func attrName(field string) string {
	return nameUnescaper.Replace(field)
}

func encodeInterval(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return d.Milliseconds()
}

func decodeInterval(ms int64) time.Duration {
	if ms < 0 {
		return session.NeverExpire
	}
	return time.Duration(ms) * time.Millisecond
}

func expireAt(s *session.Session) *time.Time {
	at, ok := s.ExpiresAt()
	if !ok {
		return nil
	}
	return &at
}

func toDocument(s *session.Session, principal string, codec session.AttributeCodec) (document, error) {
	doc := document{
		ID:        s.ID(),
		Created:   s.CreationTime(),
		Accessed:  s.LastAccessedTime(),
		Interval:  encodeInterval(s.MaxInactiveInterval()),
		ExpireAt:  expireAt(s),
		Principal: principal,
	}
	attrs, err := encodeAttrs(s.Attributes(), codec)
	if err != nil {
		return document{}, err
	}
	if len(attrs) > 0 {
		doc.Attrs = attrs
	}
	return doc, nil
}

func encodeAttrs(attrs map[string]any, codec session.AttributeCodec) (map[string][]byte, error) {
	out := make(map[string][]byte, len(attrs))
	for name, value := range attrs {
		data, err := codec.Encode(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[fieldName(name)] = data
	}
	return out, nil
}

func fromDocument(doc document, codec session.AttributeCodec) (*session.Session, error) {
	attrs := make(map[string]any, len(doc.Attrs))
	for field, data := range doc.Attrs {
		v, err := codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", attrName(field), err)
		}
		attrs[attrName(field)] = v
	}
	return session.Restore(doc.ID, doc.Created, doc.Accessed, decodeInterval(doc.Interval), attrs, doc.Principal), nil
}

package codec

// Bytes passes []byte values through untouched.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }

// String stores the UTF-8 bytes of s with no validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }

// EmptyString reports s == "". Plug it into AsideOptions.IsEmpty to cache
// empty strings as "no value".
func EmptyString(s string) bool { return s == "" }

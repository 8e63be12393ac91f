package staging

import (
	"strconv"
	"strings"
	"time"
)

// FileDescriptor carries the logical file a staged payload represents,
// independent of its local identifier.
type FileDescriptor struct {
	Name      string
	Extension string
	Size      int64
	CreatedAt time.Time
}

// ExtensionOf returns the part of name after the last dot, or "".
func ExtensionOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// URLParam renders the descriptor as the value of the relay "f" query
// parameter: name,extension,size,created-unix-millis. The caller is
// responsible for query escaping.
func (d FileDescriptor) URLParam() string {
	var b strings.Builder
	b.WriteString(d.Name)
	b.WriteByte(',')
	b.WriteString(d.Extension)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(d.Size, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(d.CreatedAt.UnixMilli(), 10))
	return b.String()
}
